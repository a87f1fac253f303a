package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"empathy-ledger/internal/story"
	"empathy-ledger/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidArgument = errors.New("consent: invalid argument")

// TenancyResolver resolves a story's organization/tenant for denormalization
// onto grant rows and change-log entries.
type TenancyResolver interface {
	GetStoryTenancy(ctx context.Context, id string) (story.Tenancy, error)
}

// Settings is the storyteller-chosen fidelity for one grant.
type Settings struct {
	ShareFullContent bool `json:"share_full_content"`
	ShareSummaryOnly bool `json:"share_summary_only"`
	ShareMedia       bool `json:"share_media"`
	ShareAttribution bool `json:"share_attribution"`
	AnonymousSharing bool `json:"anonymous_sharing"`

	CulturalRestrictions     map[string]string `json:"cultural_restrictions,omitempty"`
	RequiresCulturalApproval bool              `json:"requires_cultural_approval"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Service owns the grant lifecycle: grant, update, revoke.
//
// The engine never writes; all consent mutations flow through here so every
// change lands in the change log and triggers an application notification.
// Notification delivery is best-effort: the stored grant state is the source
// of truth and the engine re-reads it on every access, so a failed delivery
// can delay an application's cleanup but can never extend its access.
type Service struct {
	store    GrantStore
	tenancy  TenancyResolver
	notifier Notifier

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store GrantStore, tenancy TenancyResolver, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Service{store: store, tenancy: tenancy, notifier: notifier, clock: time.Now}
}

// Grant records a storyteller's approval for one application, replacing any
// prior grant for the same (story, app) pair. A re-grant after revocation
// clears the revoked timestamp; the old state is preserved in the change log.
func (s *Service) Grant(ctx context.Context, storyID, storytellerID, appID string, settings Settings) (Grant, error) {
	if storyID == "" || storytellerID == "" || appID == "" {
		return Grant{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	tenancy := s.resolveTenancy(ctx, storyID)

	grantedAt := now
	g := Grant{
		ID:            uuid.NewString(),
		StoryID:       storyID,
		AppID:         appID,
		StorytellerID: storytellerID,

		TenantID:       tenancy.TenantID,
		OrganizationID: tenancy.OrganizationID,

		Granted:   true,
		GrantedAt: &grantedAt,
		RevokedAt: nil,
		ExpiresAt: settings.ExpiresAt,

		ShareFullContent: settings.ShareFullContent,
		ShareSummaryOnly: settings.ShareSummaryOnly,
		ShareMedia:       settings.ShareMedia,
		ShareAttribution: settings.ShareAttribution,
		AnonymousSharing: settings.AnonymousSharing,

		CulturalRestrictions:     settings.CulturalRestrictions,
		RequiresCulturalApproval: settings.RequiresCulturalApproval,

		CreatedAt: now,
		UpdatedAt: now,
	}

	saved, err := s.store.UpsertGrant(ctx, g, s.changeEntry(g, ChangeGranted, "", nil, &g))
	if err != nil {
		return Grant{}, fmt.Errorf("consent: grant (%s,%s): %w", storyID, appID, err)
	}

	s.notify(ctx, Event{
		Type:          EventConsentGranted,
		StoryID:       storyID,
		AppID:         appID,
		StorytellerID: storytellerID,
		ShareLevel:    saved.ShareLevelFromFlags(),
		OccurredAt:    now,
	})
	return saved, nil
}

// Revoke makes the grant permanently unusable and immediately notifies the
// application so it removes the story. Returns ErrNotFound when no grant
// exists for the pair.
func (s *Service) Revoke(ctx context.Context, storyID, appID, storytellerID, reason string) error {
	if storyID == "" || appID == "" {
		return ErrInvalidArgument
	}

	prev, err := s.store.GetGrant(ctx, storyID, appID)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	tenancy := s.resolveTenancy(ctx, storyID)

	if storytellerID == "" {
		storytellerID = prev.StorytellerID
	}

	next := prev
	next.Granted = false
	next.RevokedAt = &now
	next.UpdatedAt = now

	_, err = s.store.RevokeGrant(ctx, storyID, appID, now, tenancy, s.changeEntry(next, ChangeRevoked, reason, &prev, &next))
	if err != nil {
		return fmt.Errorf("consent: revoke (%s,%s): %w", storyID, appID, err)
	}

	s.notify(ctx, Event{
		Type:          EventConsentRevoked,
		StoryID:       storyID,
		AppID:         appID,
		StorytellerID: storytellerID,
		Reason:        reason,
		OccurredAt:    now,
	})
	return nil
}

// Update changes an existing grant's fidelity settings (e.g. full → summary).
// Returns ErrNotFound when no grant exists for the pair.
func (s *Service) Update(ctx context.Context, storyID, appID, storytellerID string, settings Settings) (Grant, error) {
	if storyID == "" || appID == "" {
		return Grant{}, ErrInvalidArgument
	}

	prev, err := s.store.GetGrant(ctx, storyID, appID)
	if err != nil {
		return Grant{}, err
	}

	now := s.clock().UTC()

	next := prev
	next.ShareFullContent = settings.ShareFullContent
	next.ShareSummaryOnly = settings.ShareSummaryOnly
	next.ShareMedia = settings.ShareMedia
	next.ShareAttribution = settings.ShareAttribution
	next.AnonymousSharing = settings.AnonymousSharing
	next.CulturalRestrictions = settings.CulturalRestrictions
	next.RequiresCulturalApproval = settings.RequiresCulturalApproval
	next.ExpiresAt = settings.ExpiresAt
	next.UpdatedAt = now

	if storytellerID == "" {
		storytellerID = prev.StorytellerID
	}

	saved, err := s.store.UpsertGrant(ctx, next, s.changeEntry(next, ChangeUpdated, "", &prev, &next))
	if err != nil {
		return Grant{}, fmt.Errorf("consent: update (%s,%s): %w", storyID, appID, err)
	}

	s.notify(ctx, Event{
		Type:          EventConsentUpdated,
		StoryID:       storyID,
		AppID:         appID,
		StorytellerID: storytellerID,
		ShareLevel:    saved.ShareLevelFromFlags(),
		OccurredAt:    now,
	})
	return saved, nil
}

// resolveTenancy is best-effort: a resolver failure must never block a
// consent mutation (in particular a revocation). Missing tenancy is
// backfilled on a later write.
func (s *Service) resolveTenancy(ctx context.Context, storyID string) story.Tenancy {
	if s.tenancy == nil {
		return story.Tenancy{}
	}
	t, err := s.tenancy.GetStoryTenancy(ctx, storyID)
	if err != nil {
		logger.From(ctx).Warn("tenancy resolution failed", "story_id", storyID, "err", err)
		return story.Tenancy{}
	}
	return t
}

// changeEntry builds the log row written atomically with the grant mutation.
// GrantID is filled in by the store, which knows the persisted row's id.
func (s *Service) changeEntry(g Grant, action ChangeAction, reason string, prev, next *Grant) ChangeLogEntry {
	e := ChangeLogEntry{
		ID:            uuid.NewString(),
		StoryID:       g.StoryID,
		AppID:         g.AppID,
		StorytellerID: g.StorytellerID,
		Action:        action,
		Reason:        reason,
		CreatedAt:     s.clock().UTC(),
	}
	if prev != nil {
		e.PreviousState = marshalState(prev)
	}
	if next != nil {
		e.NewState = marshalState(next)
	}
	return e
}

// notify is fire-and-forget from the caller's perspective; delivery failures
// are logged, never returned.
func (s *Service) notify(ctx context.Context, e Event) {
	if err := s.notifier.Notify(ctx, e); err != nil {
		logger.From(ctx).Error("consent webhook delivery failed",
			"event", string(e.Type), "story_id", e.StoryID, "app_id", e.AppID, "err", err)
	}
}

func marshalState(g *Grant) string {
	b, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	return string(b)
}
