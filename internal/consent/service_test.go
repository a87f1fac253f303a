package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"empathy-ledger/internal/story"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

func newTestService(store GrantStore, tenancy TenancyResolver, notifier Notifier) *Service {
	s := NewService(store, tenancy, notifier)
	s.clock = func() time.Time { return testNow }
	return s
}

func TestGrantCreatesAndNotifies(t *testing.T) {
	store := NewMemoryGrantStore()
	stories := story.NewMemoryRepo()
	s := publicStory("s1")
	s.OrganizationID = strPtr("org-1")
	stories.PutStory(s)
	stories.PutOrganisation("org-1", "tenant-1")
	notifier := &recordingNotifier{}

	svc := newTestService(store, stories, notifier)

	g, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{
		ShareFullContent: true,
		ShareAttribution: true,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !g.Granted || g.RevokedAt != nil {
		t.Errorf("grant state = %+v", g)
	}
	if g.TenantID == nil || *g.TenantID != "tenant-1" {
		t.Errorf("TenantID = %v, want tenant-1", g.TenantID)
	}
	if g.GrantedAt == nil || !g.GrantedAt.Equal(testNow) {
		t.Errorf("GrantedAt = %v", g.GrantedAt)
	}

	changes := store.Changes()
	if len(changes) != 1 || changes[0].Action != ChangeGranted {
		t.Fatalf("changes = %+v", changes)
	}
	if changes[0].NewState == "" {
		t.Error("expected new state snapshot in change log")
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].Type != EventConsentGranted {
		t.Fatalf("events = %+v", events)
	}
	if events[0].ShareLevel != ShareLevelFull {
		t.Errorf("event share level = %q", events[0].ShareLevel)
	}
}

func TestRevokeMakesSubsequentChecksDeny(t *testing.T) {
	store := NewMemoryGrantStore()
	store.PutApplication(activeApp("app-1"))
	notifier := &recordingNotifier{}
	svc := newTestService(store, nil, notifier)

	if _, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{ShareFullContent: true}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	e := newTestEngine(story.NewMemoryRepo(), store)
	rc := RequestorContext{Type: RequestorAPI, AppID: "app-1"}
	if d, _ := e.CheckConsent(context.Background(), "s1", rc); !d.Allowed {
		t.Fatalf("pre-revocation: expected allow, got %q", d.Reason)
	}

	if err := svc.Revoke(context.Background(), "s1", "app-1", "", "changed my mind"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	d, _ := e.CheckConsent(context.Background(), "s1", rc)
	if d.Allowed {
		t.Fatal("post-revocation: expected denial")
	}
	if d.Reason != "Consent was revoked" {
		t.Errorf("Reason = %q", d.Reason)
	}

	events := notifier.Events()
	last := events[len(events)-1]
	if last.Type != EventConsentRevoked || last.Reason != "changed my mind" {
		t.Errorf("revocation event = %+v", last)
	}
	// Storyteller id backfilled from the stored grant.
	if last.StorytellerID != "teller-1" {
		t.Errorf("event storyteller = %q", last.StorytellerID)
	}

	changes := store.Changes()
	rev := changes[len(changes)-1]
	if rev.Action != ChangeRevoked || rev.PreviousState == "" || rev.NewState == "" {
		t.Errorf("revocation change = %+v", rev)
	}
}

func TestRevokeUnknownGrant(t *testing.T) {
	svc := newTestService(NewMemoryGrantStore(), nil, nil)
	err := svc.Revoke(context.Background(), "s1", "app-1", "", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateChangesFidelity(t *testing.T) {
	store := NewMemoryGrantStore()
	notifier := &recordingNotifier{}
	svc := newTestService(store, nil, notifier)

	if _, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{ShareFullContent: true}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	updated, err := svc.Update(context.Background(), "s1", "app-1", "", Settings{
		ShareSummaryOnly: true,
		AnonymousSharing: true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ShareFullContent || !updated.ShareSummaryOnly {
		t.Errorf("updated flags = %+v", updated)
	}
	if updated.ShareLevelFromFlags() != ShareLevelSummary {
		t.Errorf("share level = %q", updated.ShareLevelFromFlags())
	}
	if !updated.Granted {
		t.Error("update must not clear the granted state")
	}

	events := notifier.Events()
	last := events[len(events)-1]
	if last.Type != EventConsentUpdated || last.ShareLevel != ShareLevelSummary {
		t.Errorf("update event = %+v", last)
	}

	changes := store.Changes()
	up := changes[len(changes)-1]
	if up.Action != ChangeUpdated || up.PreviousState == "" {
		t.Errorf("update change = %+v", up)
	}
}

func TestUpdateUnknownGrant(t *testing.T) {
	svc := newTestService(NewMemoryGrantStore(), nil, nil)
	_, err := svc.Update(context.Background(), "s1", "app-1", "", Settings{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegrantAfterRevocation(t *testing.T) {
	store := NewMemoryGrantStore()
	svc := newTestService(store, nil, nil)

	if _, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{ShareFullContent: true}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := svc.Revoke(context.Background(), "s1", "app-1", "teller-1", ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	g, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{ShareSummaryOnly: true})
	if err != nil {
		t.Fatalf("re-Grant: %v", err)
	}
	if !g.Granted || g.RevokedAt != nil {
		t.Errorf("re-granted state = %+v", g)
	}
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	store := NewMemoryGrantStore()
	notifier := &recordingNotifier{err: errors.New("delivery down")}
	svc := newTestService(store, nil, notifier)

	if _, err := svc.Grant(context.Background(), "s1", "teller-1", "app-1", Settings{}); err != nil {
		t.Fatalf("Grant must succeed despite notifier failure: %v", err)
	}
	if err := svc.Revoke(context.Background(), "s1", "app-1", "", ""); err != nil {
		t.Fatalf("Revoke must succeed despite notifier failure: %v", err)
	}
}

func TestGrantValidatesArguments(t *testing.T) {
	svc := newTestService(NewMemoryGrantStore(), nil, nil)
	if _, err := svc.Grant(context.Background(), "", "teller-1", "app-1", Settings{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.Grant(context.Background(), "s1", "", "app-1", Settings{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.Grant(context.Background(), "s1", "teller-1", "", Settings{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func strPtr(s string) *string { return &s }
