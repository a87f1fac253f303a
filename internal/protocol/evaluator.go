// Package protocol evaluates cultural protocols for story access.
//
// Everything here is pure computation over already-loaded records: no I/O,
// no clock reads except through the exported entry points, no mutation of
// inputs. The consent engine (internal/consent) gates external disclosure;
// this package gates what a platform user may do with a story inside the
// platform.
package protocol

import (
	"time"

	"empathy-ledger/internal/story"
)

// Required-approval tokens accumulated alongside restrictions.
const (
	ApprovalElder          = "elder"
	ApprovalCulturalReview = "cultural_review"
)

// PermissionResult is the evaluator's verdict for one (story, actor) pair.
//
// Restrictions lists every protocol the pair currently violates; it is
// populated even when CanView is true through the elder bypass, so callers
// can still display which protocols apply.
type PermissionResult struct {
	CanView  bool     `json:"can_view"`
	CanShare bool     `json:"can_share"`
	CanEdit  bool     `json:"can_edit"`

	Restrictions      []string `json:"restrictions"`
	RequiredApprovals []string `json:"required_approvals"`
}

// EvaluateStoryPermissions computes view/share/edit permission for an actor
// against a story and its storyteller. Either profile may be nil (unknown
// storyteller, unauthenticated actor); absent data never grants anything.
//
// Elder bypass: an actor with elder status can always view, regardless of
// accumulated restrictions. This is an explicit cultural-authority override.
func EvaluateStoryPermissions(s story.Story, storyteller, actor *story.Profile) PermissionResult {
	return evaluateAt(s, storyteller, actor, time.Now())
}

func evaluateAt(s story.Story, storyteller, actor *story.Profile, now time.Time) PermissionResult {
	restrictions := []string{}
	approvals := []string{}

	if s.ConsentStatus != story.ConsentGranted {
		restrictions = append(restrictions, "Missing or invalid consent")
	}

	if s.SensitivityLevel == story.SensitivityHigh {
		storytellerElder := storyteller != nil && storyteller.IsElder
		actorElder := actor != nil && actor.IsElder
		if !storytellerElder && !actorElder {
			restrictions = append(restrictions, "High sensitivity content requires elder approval")
			approvals = append(approvals, ApprovalElder)
		}
	}

	if s.Type == story.TypeTraditional {
		var perms story.CulturalPermissions
		if storyteller != nil {
			perms = storyteller.CulturalPermissions
		}
		if !perms.CanShareTraditionalStories {
			restrictions = append(restrictions, "Storyteller not authorized to share traditional stories")
		}
		if perms.ElderApprovalRequired {
			approvals = append(approvals, ApprovalElder)
		}
		if perms.CulturalReviewRequired {
			approvals = append(approvals, ApprovalCulturalReview)
		}
	}

	restrictions = append(restrictions, audienceRestrictions(s, actor, now)...)

	switch s.ReviewStatus {
	case story.ReviewRejected:
		restrictions = append(restrictions, "Content rejected by cultural review")
	case story.ReviewNeedsChanges:
		restrictions = append(restrictions, "Content needs changes before approval")
	}

	actorElder := actor != nil && actor.IsElder
	canView := len(restrictions) == 0 || actorElder
	canShare := canView && s.ConsentStatus == story.ConsentGranted
	canEdit := canView && ((actor != nil && s.AuthorID == actor.ID) || actorElder)

	return PermissionResult{
		CanView:           canView,
		CanShare:          canShare,
		CanEdit:           canEdit,
		Restrictions:      restrictions,
		RequiredApprovals: approvals,
	}
}

// audienceRestrictions applies age/role gates. Without a date of birth the
// age-based gates are skipped; the elders gate is role-based and always
// enforced.
func audienceRestrictions(s story.Story, actor *story.Profile, now time.Time) []string {
	restrictions := []string{}

	if s.Audience == "" || s.Audience == story.AudienceAll {
		return restrictions
	}

	var age *int
	if actor != nil && actor.DateOfBirth != nil {
		a := ageAt(*actor.DateOfBirth, now)
		age = &a
	}

	switch s.Audience {
	case story.AudienceChildren:
		if age != nil && *age > 12 {
			restrictions = append(restrictions, "Content restricted to children")
		}
	case story.AudienceYouth:
		if age != nil && (*age < 13 || *age > 17) {
			restrictions = append(restrictions, "Content restricted to youth (13-17)")
		}
	case story.AudienceAdults:
		if age != nil && *age < 18 {
			restrictions = append(restrictions, "Content restricted to adults")
		}
	case story.AudienceElders:
		if actor == nil || !actor.IsElder {
			restrictions = append(restrictions, "Content restricted to elders")
		}
	}

	return restrictions
}

func ageAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
