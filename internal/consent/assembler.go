package consent

import (
	"context"
	"errors"
	"fmt"

	"empathy-ledger/internal/story"
)

const anonymousStoryteller = "Anonymous Storyteller"

// summaryRuneLimit caps how much of the body leaks into a summary when the
// story carries no explicit excerpt.
const summaryRuneLimit = 500

// GetStoryWithConsent returns the story redacted per the requestor's consent,
// or nil when disclosure is not allowed.
//
// Absence-as-denial is the contract: callers render a generic "not available"
// state without branching on denial reasons. Only infrastructure faults
// return an error.
func (e *Engine) GetStoryWithConsent(ctx context.Context, storyID string, requestor RequestorContext) (*ConsentedStory, error) {
	d, err := e.CheckConsent(ctx, storyID, requestor)
	if err != nil {
		return nil, err
	}
	return e.AssembleStory(ctx, storyID, requestor, d)
}

// AssembleStory applies an already-computed decision to the raw story record.
// Handlers that need the decision for response headers call CheckConsent
// first and then this, avoiding a second decision computation.
func (e *Engine) AssembleStory(ctx context.Context, storyID string, requestor RequestorContext, d Decision) (*ConsentedStory, error) {
	if !d.Allowed {
		return nil, nil
	}

	s, err := e.Stories.GetStory(ctx, storyID)
	if errors.Is(err, story.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consent: load story %s: %w", storyID, err)
	}

	var content string
	switch d.ShareLevel {
	case ShareLevelFull:
		content = s.Content
	case ShareLevelSummary:
		content = summarize(s)
	case ShareLevelTitleOnly:
		content = ""
	}

	// Named attribution discloses identity; every other mode forces the
	// placeholder AND nulls the storyteller id. The id nulling is the real
	// privacy mechanism.
	name := anonymousStoryteller
	var storytellerID *string
	if d.Attribution == AttributionNamed {
		p, err := e.Stories.GetProfile(ctx, s.StorytellerID)
		switch {
		case errors.Is(err, story.ErrNotFound):
			// Keep the placeholder name but still attribute by id.
		case err != nil:
			return nil, fmt.Errorf("consent: load profile %s: %w", s.StorytellerID, err)
		case p.DisplayName != "":
			name = p.DisplayName
		case p.FullName != "":
			name = p.FullName
		}
		id := s.StorytellerID
		storytellerID = &id
	}

	var excerpt *string
	if d.ShareLevel != ShareLevelTitleOnly && s.Excerpt != "" {
		ex := s.Excerpt
		excerpt = &ex
	}

	// nil means "not permitted"; an empty slice means "permitted but none
	// exist". Never conflate the two.
	var media []string
	if d.MediaAllowed {
		media = s.LinkedMedia
		if media == nil {
			media = []string{}
		}
	}

	title := s.Title
	if title == "" {
		title = "Untitled Story"
	}

	out := &ConsentedStory{
		ID:                   s.ID,
		Title:                title,
		Content:              content,
		Excerpt:              excerpt,
		StorytellerName:      name,
		StorytellerID:        storytellerID,
		Themes:               s.Themes,
		StoryDate:            s.CreatedAt,
		Media:                media,
		CulturalRestrictions: d.CulturalRestrictions,
		ConsentVersion:       d.ConsentVersion,
		Attribution:          d.Attribution,
	}

	if e.Audit != nil {
		e.Audit.LogAccess(ctx, storyID, requestor, AccessView)
	}

	return out, nil
}

// summarize prefers the story's own excerpt; otherwise it truncates the body.
func summarize(s story.Story) string {
	if s.Excerpt != "" {
		return s.Excerpt
	}
	runes := []rune(s.Content)
	if len(runes) <= summaryRuneLimit {
		return s.Content
	}
	return string(runes[:summaryRuneLimit]) + "..."
}
