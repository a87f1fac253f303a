package consent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"empathy-ledger/internal/story"
)

// Cache-Control values for consent decisions. External callers may sit behind
// shared HTTP caches, so their decisions carry the strict directive; internal
// responses never traverse one and use plain no-store. No decision is ever
// cacheable — revocation must propagate immediately.
const (
	cacheControlInternal = "no-store"
	cacheControlExternal = "no-store, no-cache, must-revalidate"
)

// StoryReader is the subset of the story record store the engine needs.
type StoryReader interface {
	GetStory(ctx context.Context, id string) (story.Story, error)
	GetProfile(ctx context.Context, id string) (story.Profile, error)
}

// GrantReader resolves per-(story, app) grants and application registrations.
// Implementations must map "row does not exist" to ErrNotFound.
type GrantReader interface {
	GetGrant(ctx context.Context, storyID, appID string) (Grant, error)
	GetApplication(ctx context.Context, appID string) (Application, error)
}

// AccessLogger records disclosures. Implementations are best-effort: they
// must swallow their own failures and never block or fail the response path.
type AccessLogger interface {
	LogAccess(ctx context.Context, storyID string, requestor RequestorContext, accessType AccessType)
}

var ErrNotFound = errors.New("consent: not found")

// Engine decides whether and how a story may be disclosed to a requestor.
//
// Stateless by design: every decision is freshly computed from current rows.
// There is no decision cache anywhere in this package; staleness is bounded
// only by the record store's read consistency, which is what makes a
// revocation effective everywhere at once.
//
// Denial is data (Decision.Allowed=false with Reason), never an error. Only
// infrastructure faults (store unreachable) return on the error channel.
type Engine struct {
	Stories StoryReader
	Grants  GrantReader
	Audit   AccessLogger

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func NewEngine(stories StoryReader, grants GrantReader, audit AccessLogger) *Engine {
	return &Engine{Stories: stories, Grants: grants, Audit: audit, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CheckConsent dispatches on the requestor type and returns a decision.
func (e *Engine) CheckConsent(ctx context.Context, storyID string, requestor RequestorContext) (Decision, error) {
	switch requestor.Type {
	case RequestorPublic, RequestorEmbed, RequestorOEmbed:
		return e.checkPublicConsent(ctx, storyID)

	case RequestorAPI:
		if requestor.AppID != "" {
			return e.checkAppConsent(ctx, storyID, requestor.AppID)
		}

	case RequestorInternal:
		// Internal platform code has already authenticated and authorized the
		// user through the main application's own permission layer; this
		// engine only gates external disclosure.
		return Decision{
			Allowed:              true,
			ShareLevel:           ShareLevelFull,
			Attribution:          AttributionNamed,
			MediaAllowed:         true,
			CulturalRestrictions: []CulturalRestriction{},
			ConsentVersion:       "internal",
			CacheControl:         cacheControlInternal,
		}, nil
	}

	return denied("Invalid requestor context", "denied"), nil
}

// checkPublicConsent handles public/embed/oembed requests. It never consults
// application grants: eligibility comes from the story's own visibility and
// the storyteller's sharing preferences.
func (e *Engine) checkPublicConsent(ctx context.Context, storyID string) (Decision, error) {
	s, err := e.Stories.GetStory(ctx, storyID)
	if errors.Is(err, story.ErrNotFound) {
		return denied("Story not found", "not_found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("consent: load story %s: %w", storyID, err)
	}

	if s.Visibility != story.VisibilityPublic || s.Status != story.StatusPublished {
		return denied("Story is not public", "private"), nil
	}

	var prefs story.SharingPreferences
	p, err := e.Stories.GetProfile(ctx, s.StorytellerID)
	switch {
	case errors.Is(err, story.ErrNotFound):
		// No profile row: fall through with zero-value preferences.
	case err != nil:
		return Decision{}, fmt.Errorf("consent: load profile %s: %w", s.StorytellerID, err)
	default:
		prefs = p.SharingPreferences
	}

	if !prefs.EmbedsAllowed() {
		return denied("Storyteller has disabled embedding", "embeds_disabled"), nil
	}

	// High/sacred sensitivity attaches an advisory restriction but does not
	// deny: public visibility is publish-time consent. Approval is only
	// flagged as required for sacred content.
	restrictions := []CulturalRestriction{}
	if s.SensitivityLevel == story.SensitivityHigh || s.SensitivityLevel == story.SensitivitySacred {
		restrictions = append(restrictions, CulturalRestriction{
			Type:             "sensitivity",
			Description:      fmt.Sprintf("This story has %s cultural sensitivity", s.SensitivityLevel),
			RequiresApproval: s.SensitivityLevel == story.SensitivitySacred,
		})
	}

	shareLevel := ShareLevel(prefs.DefaultShareLevel)
	if shareLevel == "" {
		shareLevel = ShareLevelFull
	}
	attribution := AttributionNamed
	if prefs.AnonymousByDefault {
		attribution = AttributionAnonymous
	}

	return Decision{
		Allowed:              true,
		ShareLevel:           shareLevel,
		Attribution:          attribution,
		MediaAllowed:         prefs.MediaAllowed(),
		CulturalRestrictions: restrictions,
		ConsentVersion:       fmt.Sprintf("public_%d", e.now().UnixMilli()),
		CacheControl:         cacheControlExternal,
	}, nil
}

// checkAppConsent handles requests from registered external applications.
// It requires a grant row for the exact (story, app) pair and validates the
// grant on every read; revocation and expiry checks are load-bearing here.
func (e *Engine) checkAppConsent(ctx context.Context, storyID, appID string) (Decision, error) {
	g, err := e.Grants.GetGrant(ctx, storyID, appID)
	if errors.Is(err, ErrNotFound) {
		return denied("No consent granted for this app", "no_consent"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("consent: load grant (%s,%s): %w", storyID, appID, err)
	}

	appActive := false
	app, err := e.Grants.GetApplication(ctx, appID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Unknown application: treated as inactive.
	case err != nil:
		return Decision{}, fmt.Errorf("consent: load application %s: %w", appID, err)
	default:
		appActive = app.IsActive
	}

	now := e.now()
	revoked := g.RevokedAt != nil
	expired := g.ExpiresAt != nil && g.ExpiresAt.Before(now)

	if !g.Granted || revoked || expired || !appActive {
		// Revocation is the most explicit signal and always wins the reason.
		reason := "Consent not granted"
		if revoked {
			reason = "Consent was revoked"
		} else if expired {
			reason = "Consent has expired"
		}
		return denied(reason, "invalid"), nil
	}

	// Cultural approval is a hard block on the app path, unlike the public
	// path's advisory note: app-level sharing is platform-mediated and
	// carries a higher disclosure expectation.
	if g.RequiresCulturalApproval && g.CulturalApprovalStatus != ApprovalApproved {
		status := g.CulturalApprovalStatus
		if status == "" {
			status = ApprovalPending
		}
		d := denied("Awaiting cultural approval", "pending_cultural")
		d.CulturalRestrictions = []CulturalRestriction{{
			Type:             "cultural_approval",
			Description:      "This story requires cultural approval before sharing",
			RequiresApproval: true,
			ApprovalStatus:   status,
		}}
		return d, nil
	}

	// Grant restriction map entries are informational at this point; the
	// blocking case was handled above.
	restrictions := make([]CulturalRestriction, 0, len(g.CulturalRestrictions))
	keys := make([]string, 0, len(g.CulturalRestrictions))
	for k := range g.CulturalRestrictions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		restrictions = append(restrictions, CulturalRestriction{
			Type:        k,
			Description: g.CulturalRestrictions[k],
		})
	}

	return Decision{
		Allowed:              true,
		ShareLevel:           g.ShareLevelFromFlags(),
		Attribution:          g.AttributionFromFlags(),
		MediaAllowed:         g.ShareMedia,
		CulturalRestrictions: restrictions,
		ExpiresAt:            g.ExpiresAt,
		ConsentVersion:       fmt.Sprintf("app_%s_%d", g.ID, g.UpdatedAt.UnixMilli()),
		CacheControl:         cacheControlExternal,
	}, nil
}

// denied builds the uniform denial decision. The version token is a static
// discriminator per denial shape so distinct denials never collide.
func denied(reason, version string) Decision {
	return Decision{
		Allowed:              false,
		Reason:               reason,
		ShareLevel:           ShareLevelNone,
		Attribution:          AttributionNone,
		MediaAllowed:         false,
		CulturalRestrictions: []CulturalRestriction{},
		ConsentVersion:       version,
		CacheControl:         cacheControlInternal,
	}
}
