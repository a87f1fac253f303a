package consent

import (
	"context"
	"strings"
	"testing"
	"time"

	"empathy-ledger/internal/story"
)

func boolPtr(b bool) *bool       { return &b }
func timePtr(t time.Time) *time.Time { return &t }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(stories *story.MemoryRepo, grants *MemoryGrantStore) *Engine {
	e := NewEngine(stories, grants, nil)
	e.Now = func() time.Time { return testNow }
	return e
}

func publicStory(id string) story.Story {
	return story.Story{
		ID:            id,
		Title:         "River Crossing",
		Content:       "Full story body.",
		Status:        story.StatusPublished,
		Visibility:    story.VisibilityPublic,
		StorytellerID: "teller-1",
	}
}

func validGrant(storyID, appID string) Grant {
	return Grant{
		ID:               "grant-1",
		StoryID:          storyID,
		AppID:            appID,
		StorytellerID:    "teller-1",
		Granted:          true,
		GrantedAt:        timePtr(testNow.Add(-24 * time.Hour)),
		ShareFullContent: true,
		ShareAttribution: true,
		UpdatedAt:        testNow.Add(-24 * time.Hour),
	}
}

func activeApp(id string) Application {
	return Application{ID: id, Name: "Partner Platform", IsActive: true}
}

func TestPublicConsentStoryNotFound(t *testing.T) {
	e := newTestEngine(story.NewMemoryRepo(), NewMemoryGrantStore())

	d, err := e.CheckConsent(context.Background(), "missing", RequestorContext{Type: RequestorPublic})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "Story not found" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.ConsentVersion != "not_found" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
	if d.ShareLevel != ShareLevelNone || d.Attribution != AttributionNone || d.MediaAllowed {
		t.Error("denial must carry none/none/no-media")
	}
}

func TestPublicConsentRequiresPublicPublished(t *testing.T) {
	cases := []struct {
		name       string
		visibility story.Visibility
		status     story.Status
	}{
		{"private visibility", story.VisibilityPrivate, story.StatusPublished},
		{"community visibility", story.VisibilityCommunity, story.StatusPublished},
		{"draft status", story.VisibilityPublic, story.StatusDraft},
		{"archived status", story.VisibilityPublic, story.StatusArchived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stories := story.NewMemoryRepo()
			s := publicStory("s1")
			s.Visibility = tc.visibility
			s.Status = tc.status
			stories.PutStory(s)

			e := newTestEngine(stories, NewMemoryGrantStore())
			d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorEmbed})
			if err != nil {
				t.Fatalf("CheckConsent: %v", err)
			}
			if d.Allowed {
				t.Fatal("expected denial")
			}
			if d.Reason != "Story is not public" {
				t.Errorf("Reason = %q", d.Reason)
			}
			if d.ConsentVersion != "private" {
				t.Errorf("ConsentVersion = %q", d.ConsentVersion)
			}
		})
	}
}

func TestPublicConsentEmbedsDisabled(t *testing.T) {
	stories := story.NewMemoryRepo()
	stories.PutStory(publicStory("s1"))
	stories.PutProfile(story.Profile{
		ID:                 "teller-1",
		SharingPreferences: story.SharingPreferences{AllowEmbeds: boolPtr(false)},
	})

	e := newTestEngine(stories, NewMemoryGrantStore())
	d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorOEmbed})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "Storyteller has disabled embedding" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.ConsentVersion != "embeds_disabled" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
}

func TestPublicConsentMissingProfileAllows(t *testing.T) {
	// A missing profile row must not block public access; unset preferences
	// default to embedding allowed and named attribution.
	stories := story.NewMemoryRepo()
	stories.PutStory(publicStory("s1"))

	e := newTestEngine(stories, NewMemoryGrantStore())
	d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorPublic})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got denial %q", d.Reason)
	}
	if d.ShareLevel != ShareLevelFull {
		t.Errorf("ShareLevel = %q, want full", d.ShareLevel)
	}
	if d.Attribution != AttributionNamed {
		t.Errorf("Attribution = %q, want named", d.Attribution)
	}
	if !d.MediaAllowed {
		t.Error("expected media allowed")
	}
}

func TestPublicConsentPreferencesApplied(t *testing.T) {
	stories := story.NewMemoryRepo()
	stories.PutStory(publicStory("s1"))
	stories.PutProfile(story.Profile{
		ID: "teller-1",
		SharingPreferences: story.SharingPreferences{
			DefaultShareLevel:  "summary",
			AnonymousByDefault: true,
			ShareMedia:         boolPtr(false),
		},
	})

	e := newTestEngine(stories, NewMemoryGrantStore())
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorPublic})
	if !d.Allowed {
		t.Fatalf("expected allow, got %q", d.Reason)
	}
	if d.ShareLevel != ShareLevelSummary {
		t.Errorf("ShareLevel = %q, want summary", d.ShareLevel)
	}
	if d.Attribution != AttributionAnonymous {
		t.Errorf("Attribution = %q, want anonymous", d.Attribution)
	}
	if d.MediaAllowed {
		t.Error("expected media disallowed")
	}
	if !strings.HasPrefix(d.ConsentVersion, "public_") {
		t.Errorf("ConsentVersion = %q, want public_ prefix", d.ConsentVersion)
	}
	if d.CacheControl != "no-store, no-cache, must-revalidate" {
		t.Errorf("CacheControl = %q", d.CacheControl)
	}
}

func TestPublicConsentSacredAdvisoryRestriction(t *testing.T) {
	// Sensitivity on the public path is advisory: the story is still served
	// because public visibility is publish-time consent, but the restriction
	// travels with the decision and sacred content flags approval.
	for _, level := range []story.SensitivityLevel{story.SensitivityHigh, story.SensitivitySacred} {
		t.Run(string(level), func(t *testing.T) {
			stories := story.NewMemoryRepo()
			s := publicStory("s1")
			s.SensitivityLevel = level
			stories.PutStory(s)

			e := newTestEngine(stories, NewMemoryGrantStore())
			d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorPublic})
			if !d.Allowed {
				t.Fatalf("expected allow, got %q", d.Reason)
			}
			if len(d.CulturalRestrictions) != 1 {
				t.Fatalf("restrictions = %d, want 1", len(d.CulturalRestrictions))
			}
			r := d.CulturalRestrictions[0]
			if r.Type != "sensitivity" {
				t.Errorf("restriction type = %q", r.Type)
			}
			wantApproval := level == story.SensitivitySacred
			if r.RequiresApproval != wantApproval {
				t.Errorf("RequiresApproval = %v, want %v", r.RequiresApproval, wantApproval)
			}
		})
	}
}

func TestAppConsentNoGrant(t *testing.T) {
	stories := story.NewMemoryRepo()
	stories.PutStory(publicStory("s1"))

	e := newTestEngine(stories, NewMemoryGrantStore())
	d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "No consent granted for this app" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.ConsentVersion != "no_consent" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
}

func TestAppConsentValidGrant(t *testing.T) {
	grants := NewMemoryGrantStore()
	grants.PutGrant(validGrant("s1", "app-1"))
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got %q", d.Reason)
	}
	if d.ShareLevel != ShareLevelFull {
		t.Errorf("ShareLevel = %q", d.ShareLevel)
	}
	if d.Attribution != AttributionNamed {
		t.Errorf("Attribution = %q", d.Attribution)
	}
	if !strings.HasPrefix(d.ConsentVersion, "app_grant-1_") {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
}

func TestAppConsentRevokedWins(t *testing.T) {
	// Revocation beats every other invalidity in the reported reason.
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	g.Granted = false
	g.RevokedAt = timePtr(testNow.Add(-time.Hour))
	g.ExpiresAt = timePtr(testNow.Add(-2 * time.Hour)) // also expired
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "Consent was revoked" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.ConsentVersion != "invalid" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
}

func TestAppConsentExpired(t *testing.T) {
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	g.ExpiresAt = timePtr(testNow.Add(-time.Minute))
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "Consent has expired" {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestAppConsentFutureExpiryStillValid(t *testing.T) {
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	g.ExpiresAt = timePtr(testNow.Add(time.Hour))
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if !d.Allowed {
		t.Fatalf("expected allow, got %q", d.Reason)
	}
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(*g.ExpiresAt) {
		t.Errorf("ExpiresAt = %v", d.ExpiresAt)
	}
}

func TestAppConsentInactiveApplication(t *testing.T) {
	grants := NewMemoryGrantStore()
	grants.PutGrant(validGrant("s1", "app-1"))
	grants.PutApplication(Application{ID: "app-1", Name: "Suspended", IsActive: false})

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if d.Allowed {
		t.Fatal("expected denial for inactive application")
	}
	if d.Reason != "Consent not granted" {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestAppConsentUnknownApplicationTreatedInactive(t *testing.T) {
	grants := NewMemoryGrantStore()
	grants.PutGrant(validGrant("s1", "app-1"))
	// no PutApplication

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, err := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial for unregistered application")
	}
}

func TestAppConsentPendingCulturalApproval(t *testing.T) {
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	g.RequiresCulturalApproval = true
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if d.Allowed {
		t.Fatal("expected denial while approval pending")
	}
	if d.Reason != "Awaiting cultural approval" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.ConsentVersion != "pending_cultural" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
	if len(d.CulturalRestrictions) != 1 {
		t.Fatalf("restrictions = %d, want 1", len(d.CulturalRestrictions))
	}
	r := d.CulturalRestrictions[0]
	if r.Type != "cultural_approval" || !r.RequiresApproval {
		t.Errorf("restriction = %+v", r)
	}
	if r.ApprovalStatus != ApprovalPending {
		t.Errorf("ApprovalStatus = %q, want pending default", r.ApprovalStatus)
	}
}

func TestAppConsentApprovedCulturalApproval(t *testing.T) {
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	g.RequiresCulturalApproval = true
	g.CulturalApprovalStatus = ApprovalApproved
	g.CulturalRestrictions = map[string]string{
		"seasonal": "Only shared during winter months",
		"region":   "Not for display outside country",
	}
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
	if !d.Allowed {
		t.Fatalf("expected allow after approval, got %q", d.Reason)
	}
	// Restriction entries are emitted in sorted key order for determinism.
	if len(d.CulturalRestrictions) != 2 {
		t.Fatalf("restrictions = %d, want 2", len(d.CulturalRestrictions))
	}
	if d.CulturalRestrictions[0].Type != "region" || d.CulturalRestrictions[1].Type != "seasonal" {
		t.Errorf("restriction order = %q, %q", d.CulturalRestrictions[0].Type, d.CulturalRestrictions[1].Type)
	}
}

func TestAppConsentShareLevelPriority(t *testing.T) {
	cases := []struct {
		name    string
		full    bool
		summary bool
		want    ShareLevel
	}{
		{"full wins over summary", true, true, ShareLevelFull},
		{"summary", false, true, ShareLevelSummary},
		{"neither is title only", false, false, ShareLevelTitleOnly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grants := NewMemoryGrantStore()
			g := validGrant("s1", "app-1")
			g.ShareFullContent = tc.full
			g.ShareSummaryOnly = tc.summary
			grants.PutGrant(g)
			grants.PutApplication(activeApp("app-1"))

			e := newTestEngine(story.NewMemoryRepo(), grants)
			d, _ := e.CheckConsent(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "app-1"})
			if d.ShareLevel != tc.want {
				t.Errorf("ShareLevel = %q, want %q", d.ShareLevel, tc.want)
			}
		})
	}
}

func TestInternalRequestorFullyOpen(t *testing.T) {
	e := newTestEngine(story.NewMemoryRepo(), NewMemoryGrantStore())
	d, err := e.CheckConsent(context.Background(), "any", RequestorContext{Type: RequestorInternal})
	if err != nil {
		t.Fatalf("CheckConsent: %v", err)
	}
	if !d.Allowed || d.ShareLevel != ShareLevelFull || d.Attribution != AttributionNamed || !d.MediaAllowed {
		t.Errorf("internal decision = %+v", d)
	}
	if d.ConsentVersion != "internal" {
		t.Errorf("ConsentVersion = %q", d.ConsentVersion)
	}
	if d.CacheControl != "no-store" {
		t.Errorf("CacheControl = %q", d.CacheControl)
	}
}

func TestUnknownRequestorDenied(t *testing.T) {
	e := newTestEngine(story.NewMemoryRepo(), NewMemoryGrantStore())

	for _, rc := range []RequestorContext{
		{Type: "bogus"},
		{Type: RequestorAPI}, // api without app id
		{},
	} {
		d, err := e.CheckConsent(context.Background(), "s1", rc)
		if err != nil {
			t.Fatalf("CheckConsent(%+v): %v", rc, err)
		}
		if d.Allowed {
			t.Errorf("requestor %+v: expected denial", rc)
		}
		if d.Reason != "Invalid requestor context" {
			t.Errorf("requestor %+v: Reason = %q", rc, d.Reason)
		}
	}
}

func TestDecisionIdempotentForUnchangedState(t *testing.T) {
	grants := NewMemoryGrantStore()
	grants.PutGrant(validGrant("s1", "app-1"))
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	rc := RequestorContext{Type: RequestorAPI, AppID: "app-1"}

	first, _ := e.CheckConsent(context.Background(), "s1", rc)
	second, _ := e.CheckConsent(context.Background(), "s1", rc)
	if first.ConsentVersion != second.ConsentVersion {
		t.Errorf("versions differ for unchanged grant: %q vs %q", first.ConsentVersion, second.ConsentVersion)
	}
	if first.Allowed != second.Allowed || first.ShareLevel != second.ShareLevel {
		t.Error("decisions differ for unchanged grant")
	}
}

func TestConsentVersionChangesWhenGrantChanges(t *testing.T) {
	grants := NewMemoryGrantStore()
	g := validGrant("s1", "app-1")
	grants.PutGrant(g)
	grants.PutApplication(activeApp("app-1"))

	e := newTestEngine(story.NewMemoryRepo(), grants)
	rc := RequestorContext{Type: RequestorAPI, AppID: "app-1"}

	before, _ := e.CheckConsent(context.Background(), "s1", rc)

	g.ShareFullContent = false
	g.ShareSummaryOnly = true
	g.UpdatedAt = g.UpdatedAt.Add(time.Minute)
	grants.PutGrant(g)

	after, _ := e.CheckConsent(context.Background(), "s1", rc)
	if before.ConsentVersion == after.ConsentVersion {
		t.Errorf("version did not change after grant update: %q", after.ConsentVersion)
	}
	if after.ShareLevel != ShareLevelSummary {
		t.Errorf("ShareLevel = %q, want summary", after.ShareLevel)
	}
}
