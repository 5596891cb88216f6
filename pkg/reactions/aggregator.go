// Package reactions holds the merge rules for per-post like/dislike
// state. The functions are pure so the synchronizer can snapshot a
// summary before an optimistic toggle and restore it on failure.
package reactions

import "pulse/pkg/models"

// Toggle applies the viewer's tap optimistically. Tapping the current
// reaction clears it; tapping a different one replaces it outright —
// there is never a half state with both counted.
func Toggle(sum models.ReactionSummary, kind models.Reaction) models.ReactionSummary {
	if kind == models.ReactionNone || kind == sum.Viewer {
		// clear
		sum = decrement(sum, sum.Viewer)
		sum.Viewer = models.ReactionNone
		return sum
	}

	sum = decrement(sum, sum.Viewer)
	sum = increment(sum, kind)
	sum.Viewer = kind
	return sum
}

// Confirm overwrites the counts with the authoritative values returned
// by the reaction mutation. The viewer's own state stays as toggled.
func Confirm(sum models.ReactionSummary, likes, dislikes int) models.ReactionSummary {
	sum.Likes = likes
	sum.Dislikes = dislikes
	return sum
}

// ApplyUpdate merges a realtime reaction event: counts are server
// truth, but the event does not say whose reaction changed, so the
// viewer's own state is never touched here.
func ApplyUpdate(sum models.ReactionSummary, likes, dislikes int) models.ReactionSummary {
	sum.Likes = likes
	sum.Dislikes = dislikes
	return sum
}

func increment(sum models.ReactionSummary, kind models.Reaction) models.ReactionSummary {
	switch kind {
	case models.ReactionLike:
		sum.Likes++
	case models.ReactionDislike:
		sum.Dislikes++
	}
	return sum
}

func decrement(sum models.ReactionSummary, kind models.Reaction) models.ReactionSummary {
	switch kind {
	case models.ReactionLike:
		if sum.Likes > 0 {
			sum.Likes--
		}
	case models.ReactionDislike:
		if sum.Dislikes > 0 {
			sum.Dislikes--
		}
	}
	return sum
}
