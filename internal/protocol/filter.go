package protocol

import "empathy-ledger/internal/story"

// FilterStories returns the subset of stories the actor can view under the
// cultural protocols. Storytellers are supplied keyed by profile id; a story
// whose storyteller is missing from the map is evaluated with a nil
// storyteller (absent data never grants anything, so this only tightens).
func FilterStories(stories []story.Story, storytellers map[string]story.Profile, actor *story.Profile) []story.Story {
	out := make([]story.Story, 0, len(stories))
	for _, s := range stories {
		var teller *story.Profile
		if p, ok := storytellers[s.StorytellerID]; ok {
			teller = &p
		}
		if EvaluateStoryPermissions(s, teller, actor).CanView {
			out = append(out, s)
		}
	}
	return out
}
