package protocol

import "empathy-ledger/internal/story"

// Action is a cultural action that requires an explicit permission.
type Action string

const (
	ActionShareTraditional   Action = "share_traditional"
	ActionShareCeremonial    Action = "share_ceremonial"
	ActionRepresentCommunity Action = "represent_community"
	ActionAccessRestricted   Action = "access_restricted"
)

// PermissionCheck is the outcome of a single cultural-action check.
// RequiredRole names the role that would satisfy a denied check.
type PermissionCheck struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RequiredRole string `json:"required_role,omitempty"`
}

// CheckCulturalPermission decides whether an actor may perform a cultural
// action. A nil actor always fails: authentication is a precondition for
// every cultural action.
func CheckCulturalPermission(action Action, actor *story.Profile) PermissionCheck {
	if actor == nil {
		return PermissionCheck{
			Reason:       "User authentication required",
			RequiredRole: "authenticated_user",
		}
	}

	perms := actor.CulturalPermissions

	switch action {
	case ActionShareTraditional:
		if !perms.CanShareTraditionalStories {
			return PermissionCheck{
				Reason:       "Not authorized to share traditional stories",
				RequiredRole: "traditional_knowledge_keeper",
			}
		}

	case ActionShareCeremonial:
		if !perms.CanShareCeremonialContent {
			return PermissionCheck{
				Reason:       "Not authorized to share ceremonial content",
				RequiredRole: "ceremonial_keeper",
			}
		}

	case ActionRepresentCommunity:
		if !perms.CanRepresentCommunity {
			return PermissionCheck{
				Reason:       "Not authorized to represent community",
				RequiredRole: "community_representative",
			}
		}

	case ActionAccessRestricted:
		if !actor.IsElder && !actor.TraditionalKnowledgeKeeper {
			return PermissionCheck{
				Reason:       "Restricted content requires elder or knowledge keeper status",
				RequiredRole: "elder_or_keeper",
			}
		}
	}

	return PermissionCheck{Allowed: true}
}
