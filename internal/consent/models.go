package consent

import "time"

// ShareLevel is the fidelity of content disclosed to a requestor.
type ShareLevel string

const (
	ShareLevelFull      ShareLevel = "full"
	ShareLevelSummary   ShareLevel = "summary"
	ShareLevelTitleOnly ShareLevel = "title_only"
	ShareLevelNone      ShareLevel = "none"
)

// Attribution is whether the storyteller's identity is disclosed.
type Attribution string

const (
	AttributionNamed     Attribution = "named"
	AttributionAnonymous Attribution = "anonymous"
	AttributionNone      Attribution = "none"
)

// RequestorType selects which consent-checking path applies.
type RequestorType string

const (
	RequestorAPI      RequestorType = "api"
	RequestorEmbed    RequestorType = "embed"
	RequestorOEmbed   RequestorType = "oembed"
	RequestorPublic   RequestorType = "public"
	RequestorInternal RequestorType = "internal"
)

// RequestorContext identifies the caller/channel for one request.
// It is never persisted; handlers construct it per request.
type RequestorContext struct {
	Type      RequestorType `json:"type"`
	AppID     string        `json:"app_id,omitempty"` // for API requests from registered apps
	AppName   string        `json:"app_name,omitempty"`
	Domain    string        `json:"domain,omitempty"` // for embed requests
	IP        string        `json:"ip,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// CulturalRestriction annotates a decision with a cultural constraint.
// Some entries are advisory (informational to consumers), others mark the
// blocking condition that denied the request.
type CulturalRestriction struct {
	Type             string         `json:"type"`
	Description      string         `json:"description"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalStatus   ApprovalStatus `json:"approval_status,omitempty"`
}

// Decision is the engine's output for one (story, requestor) pair.
//
// Denial is a normal value, not an error: Allowed=false with a Reason. Only
// infrastructure faults travel on the error channel.
//
// ConsentVersion changes whenever the underlying grant changes, so consumers
// keying anything on it can never reuse a stale decision. CacheControl is
// always a non-caching directive; the version token exists to defeat caching,
// never to enable it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	ShareLevel   ShareLevel  `json:"share_level"`
	Attribution  Attribution `json:"attribution"`
	MediaAllowed bool        `json:"media_allowed"`

	CulturalRestrictions []CulturalRestriction `json:"cultural_restrictions"`

	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ConsentVersion string     `json:"consent_version"`
	CacheControl   string     `json:"cache_control"`
}

// Grant is a storyteller's revocable authorization for one external
// application to access one story at a specified fidelity.
//
// Lifecycle: created when the storyteller approves an application's request;
// mutated only by (or on explicit behalf of) the storyteller. A revocation
// makes the grant permanently unusable even if the row is never deleted —
// the RevokedAt/ExpiresAt check is load-bearing on every read; deletion is
// not relied upon for safety.
type Grant struct {
	ID            string `json:"id" db:"id"`
	StoryID       string `json:"story_id" db:"story_id"`
	AppID         string `json:"app_id" db:"app_id"`
	StorytellerID string `json:"storyteller_id" db:"storyteller_id"`

	TenantID       *string `json:"tenant_id,omitempty" db:"tenant_id"`
	OrganizationID *string `json:"organization_id,omitempty" db:"organization_id"`

	Granted   bool       `json:"consent_granted" db:"consent_granted"`
	GrantedAt *time.Time `json:"consent_granted_at,omitempty" db:"consent_granted_at"`
	RevokedAt *time.Time `json:"consent_revoked_at,omitempty" db:"consent_revoked_at"`
	ExpiresAt *time.Time `json:"consent_expires_at,omitempty" db:"consent_expires_at"`

	ShareFullContent bool `json:"share_full_content" db:"share_full_content"`
	ShareSummaryOnly bool `json:"share_summary_only" db:"share_summary_only"`
	ShareMedia       bool `json:"share_media" db:"share_media"`
	ShareAttribution bool `json:"share_attribution" db:"share_attribution"`
	AnonymousSharing bool `json:"anonymous_sharing" db:"anonymous_sharing"`

	CulturalRestrictions map[string]string `json:"cultural_restrictions,omitempty" db:"cultural_restrictions"`

	RequiresCulturalApproval bool           `json:"requires_cultural_approval" db:"requires_cultural_approval"`
	CulturalApprovalStatus   ApprovalStatus `json:"cultural_approval_status,omitempty" db:"cultural_approval_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ShareLevelFromFlags derives the share level a grant authorizes, in priority
// order full > summary > title_only. There is no "none" outcome for a grant
// that passed validity checks; denial short-circuits earlier.
func (g Grant) ShareLevelFromFlags() ShareLevel {
	switch {
	case g.ShareFullContent:
		return ShareLevelFull
	case g.ShareSummaryOnly:
		return ShareLevelSummary
	default:
		return ShareLevelTitleOnly
	}
}

// AttributionFromFlags derives the attribution mode a grant authorizes.
func (g Grant) AttributionFromFlags() Attribution {
	switch {
	case g.ShareAttribution && !g.AnonymousSharing:
		return AttributionNamed
	case g.AnonymousSharing:
		return AttributionAnonymous
	default:
		return AttributionNone
	}
}

// Application is a registered third-party consumer.
//
// Invariant: an inactive application never receives content, even with an
// otherwise-valid, unexpired grant on record.
type Application struct {
	ID         string  `json:"id" db:"id"`
	Name       string  `json:"app_name" db:"app_name"`
	IsActive   bool    `json:"is_active" db:"is_active"`
	WebhookURL *string `json:"webhook_url,omitempty" db:"webhook_url"`
}

// ConsentedStory is the redacted view-model safe to return to a requestor.
//
// Media is nil when media is not permitted; an empty slice means permitted
// but none exist. StorytellerID is nil for any non-named attribution: the id
// nulling is the actual privacy mechanism, name substitution alone is not
// sufficient since callers might otherwise cross-reference by id.
type ConsentedStory struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	Excerpt         *string `json:"excerpt"`
	StorytellerName string  `json:"storyteller_name"`
	StorytellerID   *string `json:"storyteller_id"`

	Themes    []string  `json:"themes"`
	StoryDate time.Time `json:"story_date"`

	Media []string `json:"media"`

	CulturalRestrictions []CulturalRestriction `json:"cultural_restrictions"`
	ConsentVersion       string                `json:"consent_version"`
	Attribution          Attribution           `json:"attribution"`
}

// AccessType categorizes an audited disclosure.
type AccessType string

const (
	AccessView   AccessType = "view"
	AccessEmbed  AccessType = "embed"
	AccessExport AccessType = "export"
	AccessAPI    AccessType = "api"
)
