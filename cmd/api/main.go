package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"empathy-ledger/internal/audit"
	"empathy-ledger/internal/auth"
	"empathy-ledger/internal/config"
	"empathy-ledger/internal/consent"
	"empathy-ledger/internal/httpapi"
	"empathy-ledger/internal/story"
	"empathy-ledger/pkg/logger"
	"empathy-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Repositories
	stories := story.NewPostgresRepository(db)
	grants := consent.NewPostgresGrantStore(db)

	// Audit trail: append-only, best-effort from the engine's perspective.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), stories)

	// Consent decision engine and lifecycle service.
	engine := consent.NewEngine(stories, grants, consent.NewAuditAdapter(auditSvc))
	notifier := consent.NewHTTPNotifier(grants, cfg.Webhook.SigningSecret, cfg.Webhook.Timeout)
	consentSvc := consent.NewService(grants, stories, notifier)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Engine:  engine,
		Consent: consentSvc,
	}
	registerRoutes(r, h, routeDeps{
		authMW:  auth.RequireAccessToken(authManager),
		embedRL: httpapi.RateLimit(rdb, cfg.Embed.RateLimit, cfg.Embed.RateWindow),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
