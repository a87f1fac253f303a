package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"empathy-ledger/internal/story"
	"empathy-ledger/pkg/utils"
)

// ChangeAction categorizes a consent change-log row.
type ChangeAction string

const (
	ChangeGranted ChangeAction = "granted"
	ChangeRevoked ChangeAction = "revoked"
	ChangeUpdated ChangeAction = "updated"
)

// ChangeLogEntry is an immutable record of one consent mutation.
// The log is append-only; entries are never updated or deleted.
type ChangeLogEntry struct {
	ID            string       `json:"id" db:"id"`
	GrantID       string       `json:"grant_id" db:"grant_id"`
	StoryID       string       `json:"story_id" db:"story_id"`
	AppID         string       `json:"app_id" db:"app_id"`
	StorytellerID string       `json:"storyteller_id" db:"storyteller_id"`
	Action        ChangeAction `json:"action" db:"action"`
	Reason        string       `json:"reason,omitempty" db:"reason"`

	// PreviousState/NewState are JSON snapshots for dispute resolution.
	PreviousState string `json:"previous_state,omitempty" db:"previous_state"`
	NewState      string `json:"new_state,omitempty" db:"new_state"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GrantStore extends GrantReader with the mutations the lifecycle service
// needs. Reads stay on GrantReader so the decision engine cannot write.
//
// Every mutation carries its change-log entry and the store writes both
// atomically: a grant change without its log row would be unauditable, a log
// row without its change would be a false record.
type GrantStore interface {
	GrantReader
	UpsertGrant(ctx context.Context, g Grant, log ChangeLogEntry) (Grant, error)

	// RevokeGrant clears the granted flag and stamps RevokedAt. Tenancy is
	// backfilled when the existing row carries none; revocation must succeed
	// even for rows written before tenancy was denormalized.
	RevokeGrant(ctx context.Context, storyID, appID string, revokedAt time.Time, tenancy story.Tenancy, log ChangeLogEntry) (Grant, error)
}

// PostgresGrantStore persists grants in story_syndication_consent and the
// change log in story_consent_changes.
type PostgresGrantStore struct {
	db *sql.DB
}

func NewPostgresGrantStore(db *sql.DB) *PostgresGrantStore {
	return &PostgresGrantStore{db: db}
}

const grantColumns = `
id, story_id, app_id, storyteller_id, tenant_id, organization_id,
consent_granted, consent_granted_at, consent_revoked_at, consent_expires_at,
share_full_content, share_summary_only, share_media, share_attribution, anonymous_sharing,
cultural_restrictions, requires_cultural_approval, cultural_approval_status,
created_at, updated_at`

func (r *PostgresGrantStore) GetGrant(ctx context.Context, storyID, appID string) (Grant, error) {
	q := `
SELECT ` + grantColumns + `
FROM story_syndication_consent
WHERE story_id = $1 AND app_id = $2
`
	return scanGrant(r.db.QueryRowContext(ctx, q, storyID, appID))
}

func (r *PostgresGrantStore) GetApplication(ctx context.Context, appID string) (Application, error) {
	const q = `
SELECT id, app_name, is_active, webhook_url
FROM external_applications
WHERE id = $1
`
	var (
		a       Application
		webhook sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, q, appID).Scan(&a.ID, &a.Name, &a.IsActive, &webhook); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	if webhook.Valid {
		a.WebhookURL = &webhook.String
	}
	return a, nil
}

func (r *PostgresGrantStore) UpsertGrant(ctx context.Context, g Grant, log ChangeLogEntry) (Grant, error) {
	restrictions, err := json.Marshal(g.CulturalRestrictions)
	if err != nil {
		return Grant{}, fmt.Errorf("consent: marshal restrictions: %w", err)
	}

	q := `
INSERT INTO story_syndication_consent (
  id, story_id, app_id, storyteller_id, tenant_id, organization_id,
  consent_granted, consent_granted_at, consent_revoked_at, consent_expires_at,
  share_full_content, share_summary_only, share_media, share_attribution, anonymous_sharing,
  cultural_restrictions, requires_cultural_approval, cultural_approval_status,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
)
ON CONFLICT (story_id, app_id)
DO UPDATE SET
  storyteller_id = EXCLUDED.storyteller_id,
  tenant_id = COALESCE(EXCLUDED.tenant_id, story_syndication_consent.tenant_id),
  organization_id = COALESCE(EXCLUDED.organization_id, story_syndication_consent.organization_id),
  consent_granted = EXCLUDED.consent_granted,
  consent_granted_at = EXCLUDED.consent_granted_at,
  consent_revoked_at = EXCLUDED.consent_revoked_at,
  consent_expires_at = EXCLUDED.consent_expires_at,
  share_full_content = EXCLUDED.share_full_content,
  share_summary_only = EXCLUDED.share_summary_only,
  share_media = EXCLUDED.share_media,
  share_attribution = EXCLUDED.share_attribution,
  anonymous_sharing = EXCLUDED.anonymous_sharing,
  cultural_restrictions = EXCLUDED.cultural_restrictions,
  requires_cultural_approval = EXCLUDED.requires_cultural_approval,
  cultural_approval_status = EXCLUDED.cultural_approval_status,
  updated_at = EXCLUDED.updated_at
RETURNING ` + grantColumns

	var saved Grant
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		saved, err = scanGrant(tx.QueryRowContext(ctx, q,
			g.ID,
			g.StoryID,
			g.AppID,
			g.StorytellerID,
			g.TenantID,
			g.OrganizationID,
			g.Granted,
			g.GrantedAt,
			g.RevokedAt,
			g.ExpiresAt,
			g.ShareFullContent,
			g.ShareSummaryOnly,
			g.ShareMedia,
			g.ShareAttribution,
			g.AnonymousSharing,
			restrictions,
			g.RequiresCulturalApproval,
			nullIfEmpty(string(g.CulturalApprovalStatus)),
			g.CreatedAt,
			g.UpdatedAt,
		))
		if err != nil {
			return err
		}
		// On conflict the row keeps its original id; the log must reference it.
		log.GrantID = saved.ID
		return insertChangeLog(ctx, tx, log)
	})
	if err != nil {
		return Grant{}, err
	}
	return saved, nil
}

func (r *PostgresGrantStore) RevokeGrant(ctx context.Context, storyID, appID string, revokedAt time.Time, tenancy story.Tenancy, log ChangeLogEntry) (Grant, error) {
	q := `
UPDATE story_syndication_consent
SET consent_granted = FALSE,
    consent_revoked_at = $3,
    tenant_id = COALESCE(tenant_id, $4),
    organization_id = COALESCE(organization_id, $5),
    updated_at = $3
WHERE story_id = $1 AND app_id = $2
RETURNING ` + grantColumns

	var saved Grant
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		saved, err = scanGrant(tx.QueryRowContext(ctx, q, storyID, appID, revokedAt, tenancy.TenantID, tenancy.OrganizationID))
		if err != nil {
			return err
		}
		log.GrantID = saved.ID
		return insertChangeLog(ctx, tx, log)
	})
	if err != nil {
		return Grant{}, err
	}
	return saved, nil
}

func insertChangeLog(ctx context.Context, tx *sql.Tx, e ChangeLogEntry) error {
	const q = `
INSERT INTO story_consent_changes (
  id, grant_id, story_id, app_id, storyteller_id, action, reason,
  previous_state, new_state, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.GrantID,
		e.StoryID,
		e.AppID,
		e.StorytellerID,
		e.Action,
		e.Reason,
		e.PreviousState,
		e.NewState,
		e.CreatedAt,
	)
	return err
}

func scanGrant(row *sql.Row) (Grant, error) {
	var (
		g            Grant
		tenantID     sql.NullString
		orgID        sql.NullString
		grantedAt    sql.NullTime
		revokedAt    sql.NullTime
		expiresAt    sql.NullTime
		restrictions []byte
		approval     sql.NullString
	)
	if err := row.Scan(
		&g.ID,
		&g.StoryID,
		&g.AppID,
		&g.StorytellerID,
		&tenantID,
		&orgID,
		&g.Granted,
		&grantedAt,
		&revokedAt,
		&expiresAt,
		&g.ShareFullContent,
		&g.ShareSummaryOnly,
		&g.ShareMedia,
		&g.ShareAttribution,
		&g.AnonymousSharing,
		&restrictions,
		&g.RequiresCulturalApproval,
		&approval,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, err
	}

	if tenantID.Valid {
		g.TenantID = &tenantID.String
	}
	if orgID.Valid {
		g.OrganizationID = &orgID.String
	}
	if grantedAt.Valid {
		t := grantedAt.Time
		g.GrantedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		g.RevokedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	if approval.Valid {
		g.CulturalApprovalStatus = ApprovalStatus(approval.String)
	}
	if len(restrictions) > 0 {
		if err := json.Unmarshal(restrictions, &g.CulturalRestrictions); err != nil {
			return Grant{}, fmt.Errorf("consent: grant %s: cultural_restrictions: %w", g.ID, err)
		}
	}
	return g, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
