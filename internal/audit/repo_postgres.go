package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends entries to story_access_log.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO story_access_log (
  id, story_id, tenant_id, organization_id, app_id,
  access_type, accessor_ip, accessor_user_agent, access_context, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.StoryID,
		e.TenantID,
		e.OrganizationID,
		e.AppID,
		e.Type,
		nullable(e.AccessorIP),
		nullable(e.AccessorUserAgent),
		nullable(e.Context),
		e.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
