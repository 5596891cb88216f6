package reactions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse/pkg/models"
)

func TestToggle_SameKindClears(t *testing.T) {
	sum := models.ReactionSummary{Likes: 3, Dislikes: 1}

	sum = Toggle(sum, models.ReactionLike)
	assert.Equal(t, 4, sum.Likes)
	assert.Equal(t, models.ReactionLike, sum.Viewer)

	sum = Toggle(sum, models.ReactionLike)
	assert.Equal(t, 3, sum.Likes)
	assert.Equal(t, models.ReactionNone, sum.Viewer, "second tap of the same kind clears the reaction")
}

func TestToggle_SwitchKindReplaces(t *testing.T) {
	sum := models.ReactionSummary{Likes: 3, Dislikes: 1}

	sum = Toggle(sum, models.ReactionLike)
	sum = Toggle(sum, models.ReactionDislike)

	// Relative to the pre-toggle baseline: like back down, dislike up.
	assert.Equal(t, 3, sum.Likes)
	assert.Equal(t, 2, sum.Dislikes)
	assert.Equal(t, models.ReactionDislike, sum.Viewer)
}

func TestToggle_NoneClearsCurrent(t *testing.T) {
	sum := models.ReactionSummary{Likes: 1, Viewer: models.ReactionLike}

	sum = Toggle(sum, models.ReactionNone)
	assert.Equal(t, 0, sum.Likes)
	assert.Equal(t, models.ReactionNone, sum.Viewer)
}

func TestToggle_CountsNeverNegative(t *testing.T) {
	// Stale local state claiming a reaction with a zero count.
	sum := models.ReactionSummary{Likes: 0, Viewer: models.ReactionLike}

	sum = Toggle(sum, models.ReactionLike)
	assert.Equal(t, 0, sum.Likes)
	assert.Equal(t, models.ReactionNone, sum.Viewer)
}

func TestConfirm_OverwritesCountsKeepsViewer(t *testing.T) {
	sum := models.ReactionSummary{Likes: 5, Dislikes: 0, Viewer: models.ReactionLike}

	sum = Confirm(sum, 7, 2)
	assert.Equal(t, 7, sum.Likes)
	assert.Equal(t, 2, sum.Dislikes)
	assert.Equal(t, models.ReactionLike, sum.Viewer)
}

func TestApplyUpdate_NeverTouchesViewer(t *testing.T) {
	sum := models.ReactionSummary{Likes: 1, Viewer: models.ReactionDislike}

	sum = ApplyUpdate(sum, 10, 4)
	assert.Equal(t, 10, sum.Likes)
	assert.Equal(t, 4, sum.Dislikes)
	assert.Equal(t, models.ReactionDislike, sum.Viewer,
		"aggregate events cannot say whose reaction changed")
}
