package consent

import (
	"context"
	"errors"
	"testing"

	"empathy-ledger/internal/audit"
	"empathy-ledger/internal/story"
)

type failingAuditRepo struct{}

func (failingAuditRepo) Append(ctx context.Context, e audit.Entry) error {
	return errors.New("insert failed")
}

func TestLogAccessNeverFails(t *testing.T) {
	// Broken audit pipeline, unknown story: the call must complete normally.
	svc := audit.NewService(failingAuditRepo{}, story.NewMemoryRepo())
	a := NewAuditAdapter(svc)

	a.LogAccess(context.Background(), "ghost", RequestorContext{Type: RequestorPublic}, AccessView)

	// Nil service is also a no-op.
	var nilAdapter *AuditAdapter
	nilAdapter.LogAccess(context.Background(), "s1", RequestorContext{Type: RequestorAPI, AppID: "a"}, AccessAPI)
}

func TestLogAccessForwardsRequestorContext(t *testing.T) {
	stories := story.NewMemoryRepo()
	stories.PutStory(story.Story{ID: "s1"})
	repo := audit.NewMemoryRepo()
	a := NewAuditAdapter(audit.NewService(repo, stories))

	a.LogAccess(context.Background(), "s1", RequestorContext{
		Type:      RequestorAPI,
		AppID:     "app-1",
		AppName:   "Partner",
		IP:        "203.0.113.7",
		UserAgent: "curl/8",
	}, AccessAPI)

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.AppID == nil || *e.AppID != "app-1" {
		t.Errorf("AppID = %v", e.AppID)
	}
	if e.Type != audit.AccessTypeAPI {
		t.Errorf("Type = %q", e.Type)
	}
	if e.AccessorIP != "203.0.113.7" || e.AccessorUserAgent != "curl/8" {
		t.Errorf("accessor = %q / %q", e.AccessorIP, e.AccessorUserAgent)
	}
	if e.Context == "" {
		t.Error("expected context blob")
	}
}
