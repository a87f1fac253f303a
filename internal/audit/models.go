package audit

import "time"

// Entry is an immutable, append-only story access record.
//
// Invariants:
// - Entries are never updated or deleted.
// - Tenant/organization capture is best-effort (resolved through the story);
//   do not block content access on audit failures.
//
// Storage recommendation (Postgres):
// - Table story_access_log with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Entry struct {
	ID      string `json:"id" db:"id"`
	StoryID string `json:"story_id" db:"story_id"`

	// Tenancy is resolved story→organization→tenant; either may be unknown.
	TenantID       *string `json:"tenant_id,omitempty" db:"tenant_id"`
	OrganizationID *string `json:"organization_id,omitempty" db:"organization_id"`

	// AppID identifies the registered application, nil for public/embed access.
	AppID *string `json:"app_id,omitempty" db:"app_id"`

	Type AccessType `json:"access_type" db:"access_type"`

	// AccessorIP should capture the original client IP when available.
	// Prefer X-Forwarded-For processing at the edge; store the resolved client IP here.
	AccessorIP        string `json:"accessor_ip,omitempty" db:"accessor_ip"`
	AccessorUserAgent string `json:"accessor_user_agent,omitempty" db:"accessor_user_agent"`

	// Context is a free-form JSON blob (requestor type, domain, app name, timestamp).
	Context string `json:"access_context,omitempty" db:"access_context"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type AccessType string

const (
	AccessTypeView   AccessType = "view"
	AccessTypeEmbed  AccessType = "embed"
	AccessTypeExport AccessType = "export"
	AccessTypeAPI    AccessType = "api"
)
