package audit

import (
	"context"
	"errors"
	"time"

	"empathy-ledger/internal/story"

	"github.com/google/uuid"
)

// Repository is the persistence contract for access log entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// TenancyResolver maps a story to its organization and tenant.
// Implementations perform the story→organisation second hop when the story
// row carries no tenant.
type TenancyResolver interface {
	GetStoryTenancy(ctx context.Context, id string) (story.Tenancy, error)
}

// Service records story access for the audit trail.
//
// IMPORTANT:
// - The trail is internal-only. Do not expose these records to tenant users by default.
// - Callers must treat logging as best-effort; wrap calls so failures never
//   reach the response path.

type Service struct {
	repo    Repository
	tenancy TenancyResolver
	clock   func() time.Time
}

func NewService(repo Repository, tenancy TenancyResolver) *Service {
	return &Service{repo: repo, tenancy: tenancy, clock: time.Now}
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.StoryID == "" {
		return ErrInvalidEntry
	}
	if e.Type == "" {
		return ErrInvalidEntry
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// StoryAccess is one disclosure to record.
type StoryAccess struct {
	StoryID   string
	AppID     *string
	Type      AccessType
	IP        string
	UserAgent string
	Context   string
}

// LogStoryAccess resolves the story's tenancy and appends an entry.
// Resolution failure does not lose the entry; the row is written with
// whatever tenancy could be determined.
func (s *Service) LogStoryAccess(ctx context.Context, in StoryAccess) error {
	var tenancy story.Tenancy
	if s.tenancy != nil {
		t, err := s.tenancy.GetStoryTenancy(ctx, in.StoryID)
		if err == nil {
			tenancy = t
		}
	}

	return s.Append(ctx, Entry{
		StoryID:           in.StoryID,
		TenantID:          tenancy.TenantID,
		OrganizationID:    tenancy.OrganizationID,
		AppID:             in.AppID,
		Type:              in.Type,
		AccessorIP:        in.IP,
		AccessorUserAgent: in.UserAgent,
		Context:           in.Context,
	})
}
