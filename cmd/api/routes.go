package main

import (
	"empathy-ledger/internal/httpapi"
	"empathy-ledger/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW  gin.HandlerFunc
	embedRL gin.HandlerFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public embed surface: no authentication, rate limited per client IP.
	// Eligibility is decided entirely by the consent engine's public path.
	embed := r.Group("/")
	embed.Use(deps.embedRL)
	{
		embed.GET("/embed/stories/:story_id", h.GetEmbedStory)
		embed.GET("/oembed", h.OEmbed)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		// Story reads: user tokens take the internal path, application tokens
		// the app-consent path. The handler dispatches on token identity.
		stories := v1.Group("/stories")
		stories.Use(rbac.RequireTenant())
		{
			stories.GET("/:story_id", h.GetStory)

			// Consent lifecycle: storytellers only. Applications never mutate
			// their own grants.
			consents := stories.Group("/:story_id/consents")
			consents.Use(rbac.RequireAnyRole(rbac.RoleStoryteller, rbac.RoleElder, rbac.RoleOrgAdmin))
			{
				consents.POST("/:app_id", h.GrantConsent)
				consents.PUT("/:app_id", h.UpdateConsent)
				consents.DELETE("/:app_id", h.RevokeConsent)
			}
		}
	}
}
