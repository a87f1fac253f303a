package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"empathy-ledger/internal/auth"
	"empathy-ledger/internal/consent"
	"empathy-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Engine  *consent.Engine
	Consent *consent.Service
}

// applyConsentHeaders writes the decision's header set onto the response.
// Applied to denials too: the no-store discipline matters most there.
func applyConsentHeaders(c *gin.Context, d consent.Decision) {
	for k, v := range consent.ConsentHeaders(d) {
		c.Header(k, v)
	}
}

// unavailable renders the uniform denial response. Denial reasons stay
// internal: revealing which check failed could leak a story's restricted
// status to an unauthorized requestor.
func unavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "content unavailable"})
}

func embedRequestor(c *gin.Context, typ consent.RequestorType) consent.RequestorContext {
	domain := c.GetHeader("Origin")
	if domain == "" {
		domain = c.GetHeader("Referer")
	}
	return consent.RequestorContext{
		Type:      typ,
		Domain:    domain,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// --- Public embed surface ---

// GetEmbedStory serves a story for third-party embedding. No authentication:
// eligibility is decided entirely by the consent engine's public path.
func (h Handlers) GetEmbedStory(c *gin.Context) {
	storyID := c.Param("story_id")
	if storyID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "story_id required"})
		return
	}

	requestor := embedRequestor(c, consent.RequestorEmbed)
	d, err := h.Engine.CheckConsent(c.Request.Context(), storyID, requestor)
	if err != nil {
		logger.FromGin(c).Error("consent check failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	applyConsentHeaders(c, d)

	s, err := h.Engine.AssembleStory(c.Request.Context(), storyID, requestor, d)
	if err != nil {
		logger.FromGin(c).Error("story assembly failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if s == nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, s)
}

// oembedResponse is the subset of the oEmbed 1.0 rich-type response we emit.
type oembedResponse struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
	HTML         string `json:"html"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

// OEmbed implements an oEmbed provider endpoint: ?url=<canonical story url>.
// The story id is the last path segment of the supplied URL.
func (h Handlers) OEmbed(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	storyID := path.Base(strings.TrimSuffix(u.Path, "/"))
	if storyID == "" || storyID == "." || storyID == "/" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}

	requestor := embedRequestor(c, consent.RequestorOEmbed)
	d, err := h.Engine.CheckConsent(c.Request.Context(), storyID, requestor)
	if err != nil {
		logger.FromGin(c).Error("consent check failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	applyConsentHeaders(c, d)

	s, err := h.Engine.AssembleStory(c.Request.Context(), storyID, requestor, d)
	if err != nil {
		logger.FromGin(c).Error("story assembly failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if s == nil {
		unavailable(c)
		return
	}

	embedSrc := &url.URL{Path: "/embed/stories/" + s.ID}
	c.JSON(http.StatusOK, oembedResponse{
		Version:      "1.0",
		Type:         "rich",
		Title:        s.Title,
		AuthorName:   s.StorytellerName,
		ProviderName: "Empathy Ledger",
		HTML:         `<iframe src="` + embedSrc.String() + `" width="600" height="400" frameborder="0"></iframe>`,
		Width:        600,
		Height:       400,
	})
}

// --- Authenticated API surface ---

// GetStory serves a story to an authenticated caller. Registered application
// tokens go through the app-consent path; platform user tokens are internal
// requestors, already authorized upstream.
func (h Handlers) GetStory(c *gin.Context) {
	storyID := c.Param("story_id")
	if storyID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "story_id required"})
		return
	}

	ctx := c.Request.Context()
	requestor := consent.RequestorContext{
		Type:      consent.RequestorInternal,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if appID := auth.AppID(ctx); appID != "" {
		requestor.Type = consent.RequestorAPI
		requestor.AppID = appID
		requestor.AppName = auth.AppName(ctx)
	}

	d, err := h.Engine.CheckConsent(ctx, storyID, requestor)
	if err != nil {
		logger.FromGin(c).Error("consent check failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	applyConsentHeaders(c, d)

	s, err := h.Engine.AssembleStory(ctx, storyID, requestor, d)
	if err != nil {
		logger.FromGin(c).Error("story assembly failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if s == nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, s)
}

// --- Consent lifecycle ---

type consentSettingsRequest struct {
	ShareFullContent bool `json:"share_full_content"`
	ShareSummaryOnly bool `json:"share_summary_only"`
	ShareMedia       bool `json:"share_media"`
	ShareAttribution bool `json:"share_attribution"`
	AnonymousSharing bool `json:"anonymous_sharing"`

	CulturalRestrictions     map[string]string `json:"cultural_restrictions"`
	RequiresCulturalApproval bool              `json:"requires_cultural_approval"`

	ExpiresAt *time.Time `json:"expires_at"`
}

func (r consentSettingsRequest) settings() consent.Settings {
	return consent.Settings{
		ShareFullContent:         r.ShareFullContent,
		ShareSummaryOnly:         r.ShareSummaryOnly,
		ShareMedia:               r.ShareMedia,
		ShareAttribution:         r.ShareAttribution,
		AnonymousSharing:         r.AnonymousSharing,
		CulturalRestrictions:     r.CulturalRestrictions,
		RequiresCulturalApproval: r.RequiresCulturalApproval,
		ExpiresAt:                r.ExpiresAt,
	}
}

// GrantConsent records the authenticated storyteller's approval for one
// application to syndicate one story.
func (h Handlers) GrantConsent(c *gin.Context) {
	storyID := c.Param("story_id")
	appID := c.Param("app_id")
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user token required"})
		return
	}

	var req consentSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	g, err := h.Consent.Grant(c.Request.Context(), storyID, userID, appID, req.settings())
	switch {
	case errors.Is(err, consent.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "story_id and app_id required"})
		return
	case err != nil:
		logger.FromGin(c).Error("consent grant failed", "story_id", storyID, "app_id", appID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, g)
}

// UpdateConsent changes an existing grant's fidelity settings.
func (h Handlers) UpdateConsent(c *gin.Context) {
	storyID := c.Param("story_id")
	appID := c.Param("app_id")
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user token required"})
		return
	}

	var req consentSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	g, err := h.Consent.Update(c.Request.Context(), storyID, appID, userID, req.settings())
	switch {
	case errors.Is(err, consent.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no consent on record"})
		return
	case errors.Is(err, consent.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "story_id and app_id required"})
		return
	case err != nil:
		logger.FromGin(c).Error("consent update failed", "story_id", storyID, "app_id", appID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, g)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// RevokeConsent withdraws a grant. The application is notified immediately;
// its access ends at the moment the row is updated regardless of delivery.
func (h Handlers) RevokeConsent(c *gin.Context) {
	storyID := c.Param("story_id")
	appID := c.Param("app_id")
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user token required"})
		return
	}

	var req revokeRequest
	// Body is optional on revocation.
	_ = c.ShouldBindJSON(&req)

	err = h.Consent.Revoke(c.Request.Context(), storyID, appID, userID, req.Reason)
	switch {
	case errors.Is(err, consent.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no consent on record"})
		return
	case errors.Is(err, consent.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "story_id and app_id required"})
		return
	case err != nil:
		logger.FromGin(c).Error("consent revoke failed", "story_id", storyID, "app_id", appID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
