package story

import "time"

// Story is a narrative record owned by a storyteller within a tenant.
//
// Invariant: effective disclosure is never determined by Visibility alone.
// SensitivityLevel and the storyteller's sharing preferences always apply as
// additional gates; the consent engine owns that evaluation.
type Story struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Content string `json:"content" db:"content"`
	Excerpt string `json:"excerpt,omitempty" db:"excerpt"`

	Status           Status           `json:"status" db:"status"`
	Visibility       Visibility       `json:"visibility" db:"visibility"`
	SensitivityLevel SensitivityLevel `json:"cultural_sensitivity_level" db:"cultural_sensitivity_level"`
	Type             Type             `json:"story_type" db:"story_type"`
	Audience         Audience         `json:"audience" db:"audience"`

	// ConsentStatus is the story's own publish-time consent, distinct from
	// per-application grants (internal/consent).
	ConsentStatus ConsentStatus `json:"consent_status" db:"consent_status"`
	ReviewStatus  ReviewStatus  `json:"cultural_review_status" db:"cultural_review_status"`

	Themes      []string `json:"themes,omitempty" db:"themes"`
	LinkedMedia []string `json:"linked_media,omitempty" db:"linked_media"`

	StorytellerID string `json:"storyteller_id" db:"storyteller_id"`
	AuthorID      string `json:"author_id" db:"author_id"`

	// Tenancy is partially denormalized: organization_id is always set at
	// write time, tenant_id may be absent and must then be resolved through
	// the organisation row.
	OrganizationID *string `json:"organization_id,omitempty" db:"organization_id"`
	TenantID       *string `json:"tenant_id,omitempty" db:"tenant_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityCommunity    Visibility = "community"
	VisibilityOrganisation Visibility = "organisation"
	VisibilityPrivate      Visibility = "private"
)

// SensitivityLevel classifies how culturally restricted a story's content is,
// independent of its technical visibility setting.
type SensitivityLevel string

const (
	SensitivityLow    SensitivityLevel = "low"
	SensitivityMedium SensitivityLevel = "medium"
	SensitivityHigh   SensitivityLevel = "high"
	SensitivitySacred SensitivityLevel = "sacred"
)

type Type string

const (
	TypeTraditional Type = "traditional"
	TypePersonal    Type = "personal"
	TypeHistorical  Type = "historical"
	TypeEducational Type = "educational"
	TypeHealing     Type = "healing"
)

type Audience string

const (
	AudienceChildren Audience = "children"
	AudienceYouth    Audience = "youth"
	AudienceAdults   Audience = "adults"
	AudienceElders   Audience = "elders"
	AudienceAll      Audience = "all"
)

type ConsentStatus string

const (
	ConsentPending ConsentStatus = "pending"
	ConsentGranted ConsentStatus = "granted"
	ConsentDenied  ConsentStatus = "denied"
	ConsentExpired ConsentStatus = "expired"
)

type ReviewStatus string

const (
	ReviewPending      ReviewStatus = "pending"
	ReviewApproved     ReviewStatus = "approved"
	ReviewRejected     ReviewStatus = "rejected"
	ReviewNeedsChanges ReviewStatus = "needs_changes"
)

// Profile is the human owner of one or more stories.
type Profile struct {
	ID string `json:"id" db:"id"`

	// DisplayName and FullName may be independently withheld.
	DisplayName string `json:"display_name,omitempty" db:"display_name"`
	FullName    string `json:"full_name,omitempty" db:"full_name"`

	IsElder                    bool `json:"is_elder" db:"is_elder"`
	TraditionalKnowledgeKeeper bool `json:"traditional_knowledge_keeper" db:"traditional_knowledge_keeper"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`

	CulturalBackground []string `json:"cultural_background,omitempty" db:"cultural_background"`

	CulturalPermissions CulturalPermissions `json:"cultural_permissions" db:"cultural_permissions"`
	SharingPreferences  SharingPreferences  `json:"sharing_preferences" db:"sharing_preferences"`
}

// CulturalPermissions is the storyteller's cultural permission set.
// Zero value means no permission; absent data never grants anything.
type CulturalPermissions struct {
	CanShareTraditionalStories bool `json:"can_share_traditional_stories"`
	CanShareCeremonialContent  bool `json:"can_share_ceremonial_content"`
	CanRepresentCommunity      bool `json:"can_represent_community"`
	ElderApprovalRequired      bool `json:"elder_approval_required"`
	CulturalReviewRequired     bool `json:"cultural_review_required"`
}

// SharingPreferences drives the public/embed consent path.
//
// AllowEmbeds and ShareMedia are tri-state: nil means "not set", which the
// public path treats as allowed (public visibility is itself publish-time
// consent). AnonymousByDefault unset means named attribution.
type SharingPreferences struct {
	DefaultShareLevel  string `json:"default_share_level,omitempty"`
	AnonymousByDefault bool   `json:"anonymous_by_default,omitempty"`
	AllowEmbeds        *bool  `json:"allow_embeds,omitempty"`
	ShareMedia         *bool  `json:"share_media,omitempty"`
}

// EmbedsAllowed reports whether embedding is enabled (disabled only when
// explicitly set to false).
func (p SharingPreferences) EmbedsAllowed() bool {
	return p.AllowEmbeds == nil || *p.AllowEmbeds
}

// MediaAllowed reports whether media sharing is enabled (disabled only when
// explicitly set to false).
func (p SharingPreferences) MediaAllowed() bool {
	return p.ShareMedia == nil || *p.ShareMedia
}

// Tenancy is the resolved organization/tenant pair for a story.
// Either field may be nil when the underlying rows carry no value.
type Tenancy struct {
	OrganizationID *string
	TenantID       *string
}
