package story

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("story: not found")

// Repository is the read contract over the story record store.
//
// Implementations must map "row does not exist" to ErrNotFound; any other
// error is an infrastructure fault the consent engine propagates unchanged.
type Repository interface {
	GetStory(ctx context.Context, id string) (Story, error)
	GetProfile(ctx context.Context, id string) (Profile, error)

	// GetStoryTenancy resolves organization and tenant for a story. Tenant is
	// not always denormalized onto the story row; when absent it is resolved
	// through the owning organisation (two-hop).
	GetStoryTenancy(ctx context.Context, id string) (Tenancy, error)
}

// PostgresRepository reads stories and profiles from Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetStory(ctx context.Context, id string) (Story, error) {
	const q = `
SELECT id, title, content, excerpt, status, visibility, cultural_sensitivity_level,
       story_type, audience, consent_status, cultural_review_status,
       themes, linked_media, storyteller_id, author_id,
       organization_id, tenant_id, created_at, updated_at
FROM stories
WHERE id = $1
`
	var (
		s          Story
		excerpt    sql.NullString
		audience   sql.NullString
		themes     []byte
		media      []byte
		orgID      sql.NullString
		tenantID   sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID,
		&s.Title,
		&s.Content,
		&excerpt,
		&s.Status,
		&s.Visibility,
		&s.SensitivityLevel,
		&s.Type,
		&audience,
		&s.ConsentStatus,
		&s.ReviewStatus,
		&themes,
		&media,
		&s.StorytellerID,
		&s.AuthorID,
		&orgID,
		&tenantID,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Story{}, ErrNotFound
		}
		return Story{}, err
	}

	s.Excerpt = excerpt.String
	if audience.Valid {
		s.Audience = Audience(audience.String)
	} else {
		s.Audience = AudienceAll
	}
	if orgID.Valid {
		s.OrganizationID = &orgID.String
	}
	if tenantID.Valid {
		s.TenantID = &tenantID.String
	}
	if err := unmarshalStrings(themes, &s.Themes); err != nil {
		return Story{}, fmt.Errorf("story %s: themes: %w", id, err)
	}
	if err := unmarshalStrings(media, &s.LinkedMedia); err != nil {
		return Story{}, fmt.Errorf("story %s: linked_media: %w", id, err)
	}
	return s, nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (Profile, error) {
	const q = `
SELECT id, display_name, full_name, is_elder, traditional_knowledge_keeper,
       date_of_birth, cultural_background, cultural_permissions, sharing_preferences
FROM profiles
WHERE id = $1
`
	var (
		p           Profile
		displayName sql.NullString
		fullName    sql.NullString
		dob         sql.NullTime
		background  []byte
		perms       []byte
		prefs       []byte
	)
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID,
		&displayName,
		&fullName,
		&p.IsElder,
		&p.TraditionalKnowledgeKeeper,
		&dob,
		&background,
		&perms,
		&prefs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}

	p.DisplayName = displayName.String
	p.FullName = fullName.String
	if dob.Valid {
		t := dob.Time
		p.DateOfBirth = &t
	}
	if err := unmarshalStrings(background, &p.CulturalBackground); err != nil {
		return Profile{}, fmt.Errorf("profile %s: cultural_background: %w", id, err)
	}
	// Validate loosely-typed JSONB at the adapter boundary so business logic
	// sees typed DTOs, never raw maps.
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &p.CulturalPermissions); err != nil {
			return Profile{}, fmt.Errorf("profile %s: cultural_permissions: %w", id, err)
		}
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.SharingPreferences); err != nil {
			return Profile{}, fmt.Errorf("profile %s: sharing_preferences: %w", id, err)
		}
	}
	return p, nil
}

func (r *PostgresRepository) GetStoryTenancy(ctx context.Context, id string) (Tenancy, error) {
	const q = `
SELECT organization_id, tenant_id
FROM stories
WHERE id = $1
`
	var orgID, tenantID sql.NullString
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&orgID, &tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenancy{}, ErrNotFound
		}
		return Tenancy{}, err
	}

	var t Tenancy
	if orgID.Valid {
		t.OrganizationID = &orgID.String
	}
	if tenantID.Valid {
		t.TenantID = &tenantID.String
	}

	// Second hop: the organisation row is authoritative for tenant when the
	// story row carries none (or a stale value).
	if t.OrganizationID != nil {
		const orgQ = `
SELECT tenant_id
FROM organisations
WHERE id = $1
`
		var orgTenant sql.NullString
		err := r.db.QueryRowContext(ctx, orgQ, *t.OrganizationID).Scan(&orgTenant)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Dangling organization reference; keep whatever the story had.
		case err != nil:
			return Tenancy{}, err
		case orgTenant.Valid:
			t.TenantID = &orgTenant.String
		}
	}
	return t, nil
}

func unmarshalStrings(raw []byte, out *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
