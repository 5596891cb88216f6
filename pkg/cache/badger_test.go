package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/pkg/models"
)

func TestBadger_SaveLoadClear(t *testing.T) {
	store, err := NewBadgerInMemory()
	require.NoError(t, err)
	defer store.Close()

	posts := []models.Post{{ID: "a", Content: "hello"}, {ID: "b", Content: "world"}}
	store.Save(PostsKey("home"), posts)

	var got []models.Post
	require.True(t, store.Load(PostsKey("home"), &got))
	assert.Equal(t, posts, got)

	store.Clear(PostsKey("home"))
	assert.False(t, store.Load(PostsKey("home"), &got))
}

func TestBadger_LoadAbsentKey(t *testing.T) {
	store, err := NewBadgerInMemory()
	require.NoError(t, err)
	defer store.Close()

	var got []models.Post
	assert.False(t, store.Load(PostsKey("nope"), &got))
}

func TestBadger_LastWriterWins(t *testing.T) {
	store, err := NewBadgerInMemory()
	require.NoError(t, err)
	defer store.Close()

	store.Save(CommentsKey("p1"), []models.Comment{{ID: "old"}})
	store.Save(CommentsKey("p1"), []models.Comment{{ID: "new"}})

	var got []models.Comment
	require.True(t, store.Load(CommentsKey("p1"), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestKeys_Namespacing(t *testing.T) {
	assert.Equal(t, "posts:home", PostsKey("home"))
	assert.Equal(t, "comments:p1", CommentsKey("p1"))
}
