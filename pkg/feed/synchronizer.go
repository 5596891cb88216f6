// Package feed owns the canonical post list and reconciles it across
// three sources: the remote gateway, the realtime channel, and the
// viewer's own optimistic mutations. Every merge runs under one mutex;
// network calls always happen outside it, so a merge step never
// suspends mid-way.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pulse/pkg/cache"
	"pulse/pkg/comments"
	"pulse/pkg/envelope"
	"pulse/pkg/gateway"
	"pulse/pkg/models"
	"pulse/pkg/reactions"
	"pulse/pkg/realtime"
)

// Gateway is what the synchronizer needs from the remote backend.
// *gateway.Client satisfies it; tests substitute their own.
type Gateway interface {
	FetchPosts(ctx context.Context) ([]models.Post, error)
	FetchComments(ctx context.Context, postID string) ([]models.Comment, error)
	CreatePost(ctx context.Context, draft models.PostDraft) (models.Post, error)
	UpdatePost(ctx context.Context, id, content string) (models.Post, error)
	DeletePost(ctx context.Context, id string) error
	SetReaction(ctx context.Context, postID string, kind models.Reaction) (gateway.ReactionCounts, error)
	AddComment(ctx context.Context, postID string, parentID *string, text string) (models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

type Synchronizer struct {
	session models.Session
	gw      Gateway
	store   cache.Store
	scope   string
	order   comments.Order

	mu         sync.Mutex
	posts      []models.Post
	tombstones map[string]struct{}
	trees      map[string]*comments.Tree
	degraded   bool

	ch            *realtime.Channel
	subs          map[string]realtime.Subscription
	reconnectHook realtime.Subscription
}

// New builds a synchronizer for one feed scope ("home", a group id…).
// The session is passed in explicitly; the synchronizer never reads
// ambient user state.
func New(session models.Session, gw Gateway, store cache.Store, scope string, order comments.Order) *Synchronizer {
	return &Synchronizer{
		session:    session,
		gw:         gw,
		store:      store,
		scope:      scope,
		order:      order,
		tombstones: make(map[string]struct{}),
		trees:      make(map[string]*comments.Tree),
		subs:       make(map[string]realtime.Subscription),
	}
}

// ── Initial load & healing ──────────────────────────────

// Load runs the initial fetch. On success the canonical list is
// replaced wholesale in server order and snapshotted to the cache. On
// failure the last snapshot is used (degraded mode); with no snapshot
// the list stays empty and the error surfaces.
func (s *Synchronizer) Load(ctx context.Context) error {
	posts, err := s.gw.FetchPosts(ctx)
	if err != nil {
		if s.loadFromCache() {
			log.Printf("[feed] remote fetch failed (%v) — serving cached snapshot", err)
			return nil
		}
		return fmt.Errorf("load feed: %w", err)
	}

	s.replaceAll(posts)
	s.persist()
	return nil
}

// Refresh is the reconciliation refetch: after a reconnect an unknown
// number of events may have been missed, so canonical state is rebuilt
// from the gateway instead of replayed.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	posts, err := s.gw.FetchPosts(ctx)
	if err != nil {
		return fmt.Errorf("refresh feed: %w", err)
	}
	s.replaceAll(posts)
	s.persist()
	return nil
}

func (s *Synchronizer) replaceAll(posts []models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]models.Post, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if _, gone := s.tombstones[p.ID]; gone {
			continue
		}
		seen[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}
	s.posts = fresh
	s.degraded = false
}

func (s *Synchronizer) loadFromCache() bool {
	var cached []models.Post
	if !s.store.Load(cache.PostsKey(s.scope), &cached) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make([]models.Post, 0, len(cached))
	seen := make(map[string]struct{}, len(cached))
	for _, p := range cached {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		// A snapshot predating a removal must not resurrect it.
		if _, gone := s.tombstones[p.ID]; gone {
			continue
		}
		seen[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}
	s.posts = fresh
	s.degraded = true
	return true
}

func (s *Synchronizer) persist() {
	s.mu.Lock()
	snapshot := make([]models.Post, len(s.posts))
	copy(snapshot, s.posts)
	s.mu.Unlock()
	s.store.Save(cache.PostsKey(s.scope), snapshot)
}

// ── Reads ───────────────────────────────────────────────

func (s *Synchronizer) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *Synchronizer) Post(id string) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.posts[i], true
	}
	return models.Post{}, false
}

// Search filters the canonical list by content, case-insensitive.
func (s *Synchronizer) Search(text string) []models.Post {
	text = strings.ToLower(strings.TrimSpace(text))
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		out := make([]models.Post, len(s.posts))
		copy(out, s.posts)
		return out
	}
	var out []models.Post
	for _, p := range s.posts {
		if strings.Contains(strings.ToLower(p.Content), text) {
			out = append(out, p)
		}
	}
	return out
}

// Degraded reports whether the list was served from the fallback cache
// because the remote was unreachable.
func (s *Synchronizer) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Comments returns the reply tree for a post, if loaded.
func (s *Synchronizer) Comments(postID string) []models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trees[postID]; ok {
		return t.Roots()
	}
	return nil
}

// ── Optimistic post mutations ───────────────────────────

// CreatePost shows the post immediately under a provisional id, then
// swaps in the authoritative entity once the gateway confirms. On
// failure the provisional post disappears and the error surfaces.
func (s *Synchronizer) CreatePost(ctx context.Context, draft models.PostDraft) (models.Post, error) {
	provisional := models.Post{
		ID:        uuid.NewString(),
		Author:    s.session.UserRef,
		Content:   draft.Content,
		MediaPath: draft.MediaPath,
	}

	s.mu.Lock()
	s.posts = append([]models.Post{provisional}, s.posts...)
	s.mu.Unlock()

	created, err := s.gw.CreatePost(ctx, draft)
	if err != nil {
		s.mu.Lock()
		s.remove(provisional.ID)
		s.mu.Unlock()
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}

	s.mu.Lock()
	if i := s.index(created.ID); i >= 0 {
		// The new_post event beat the response; drop the provisional.
		s.remove(provisional.ID)
	} else if i := s.index(provisional.ID); i >= 0 {
		s.posts[i] = created
	} else {
		s.posts = append([]models.Post{created}, s.posts...)
	}
	s.mu.Unlock()

	s.persist()
	return created, nil
}

// DeletePost removes the post at once and tombstones its id. NotFound
// from the gateway means someone else already deleted it — still a
// success. Any other failure puts the post back where it was.
func (s *Synchronizer) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.index(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil // already gone, nothing to do
	}
	removed := s.posts[idx]
	s.posts = append(s.posts[:idx], s.posts[idx+1:]...)
	s.tombstones[id] = struct{}{}
	s.mu.Unlock()

	err := s.gw.DeletePost(ctx, id)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		s.mu.Lock()
		delete(s.tombstones, id)
		if s.index(id) < 0 {
			if idx > len(s.posts) {
				idx = len(s.posts)
			}
			s.posts = append(s.posts[:idx], append([]models.Post{removed}, s.posts[idx:]...)...)
		}
		s.mu.Unlock()
		return fmt.Errorf("delete post %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.trees, id)
	s.mu.Unlock()
	s.store.Clear(cache.CommentsKey(id))
	s.persist()
	return nil
}

// UpdatePost edits the post body optimistically.
func (s *Synchronizer) UpdatePost(ctx context.Context, id, content string) error {
	s.mu.Lock()
	idx := s.index(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update post %s: %w", id, gateway.ErrNotFound)
	}
	previous := s.posts[idx].Content
	s.posts[idx].Content = content
	s.mu.Unlock()

	updated, err := s.gw.UpdatePost(ctx, id, content)
	if err != nil {
		s.mu.Lock()
		if i := s.index(id); i >= 0 {
			s.posts[i].Content = previous
		}
		s.mu.Unlock()
		return fmt.Errorf("update post %s: %w", id, err)
	}

	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.posts[i].Content = updated.Content
		s.posts[i].MediaPath = updated.MediaPath
	}
	s.mu.Unlock()
	s.persist()
	return nil
}

// React applies the toggle rules locally for zero-latency feedback,
// then reconciles against the authoritative counts. On failure the
// pre-toggle summary is restored in full.
func (s *Synchronizer) React(ctx context.Context, id string, kind models.Reaction) error {
	if !kind.Valid() {
		return fmt.Errorf("react: invalid kind %q", kind)
	}

	s.mu.Lock()
	idx := s.index(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("react to %s: %w", id, gateway.ErrNotFound)
	}
	before := s.posts[idx].Reactions
	s.posts[idx].Reactions = reactions.Toggle(before, kind)
	s.mu.Unlock()

	counts, err := s.gw.SetReaction(ctx, id, kind)
	if err != nil {
		s.mu.Lock()
		if i := s.index(id); i >= 0 {
			s.posts[i].Reactions = before
		}
		s.mu.Unlock()
		return fmt.Errorf("react to %s: %w", id, err)
	}

	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.posts[i].Reactions = reactions.Confirm(s.posts[i].Reactions, counts.Likes, counts.Dislikes)
	}
	s.mu.Unlock()
	return nil
}

// ── Comments ────────────────────────────────────────────

// LoadComments fetches and rebuilds the reply tree for one post,
// snapshotting the flat list. When the remote fails, the last snapshot
// is rebuilt instead; with neither, the error surfaces.
func (s *Synchronizer) LoadComments(ctx context.Context, postID string) error {
	list, err := s.gw.FetchComments(ctx, postID)
	if err != nil {
		var cached []models.Comment
		if s.store.Load(cache.CommentsKey(postID), &cached) {
			log.Printf("[feed] comments fetch for %s failed (%v) — serving cached snapshot", postID, err)
			s.rebuildTree(postID, cached)
			return nil
		}
		return fmt.Errorf("load comments for %s: %w", postID, err)
	}

	s.rebuildTree(postID, list)
	s.store.Save(cache.CommentsKey(postID), list)
	return nil
}

func (s *Synchronizer) rebuildTree(postID string, list []models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[postID]
	if !ok {
		t = comments.New(postID, s.order)
		s.trees[postID] = t
	}
	t.Rebuild(list)
	if i := s.index(postID); i >= 0 {
		s.posts[i].CommentCount = t.Len()
	}
}

// AddComment inserts optimistically under a provisional id, bumping
// the post's comment count, then swaps in the server's comment.
func (s *Synchronizer) AddComment(ctx context.Context, postID string, parentID *string, text string) (models.Comment, error) {
	provisional := models.Comment{
		ID:       uuid.NewString(),
		PostID:   postID,
		ParentID: parentID,
		Author:   s.session.UserRef,
		Content:  text,
	}

	s.mu.Lock()
	t, ok := s.trees[postID]
	if !ok {
		t = comments.New(postID, s.order)
		s.trees[postID] = t
	}
	t.Insert(provisional)
	if i := s.index(postID); i >= 0 {
		s.posts[i].CommentCount++
	}
	s.mu.Unlock()

	created, err := s.gw.AddComment(ctx, postID, parentID, text)
	if err != nil {
		s.mu.Lock()
		t.Remove(provisional.ID)
		if i := s.index(postID); i >= 0 && s.posts[i].CommentCount > 0 {
			s.posts[i].CommentCount--
		}
		s.mu.Unlock()
		return models.Comment{}, fmt.Errorf("add comment: %w", err)
	}

	s.mu.Lock()
	t.Confirm(provisional.ID, created)
	s.mu.Unlock()
	return created, nil
}

// DeleteComment removes the comment and its subtree (cascade policy)
// optimistically. NotFound counts as success; other failures restore
// the detached subtree in place.
func (s *Synchronizer) DeleteComment(ctx context.Context, id string) error {
	s.mu.Lock()
	var t *comments.Tree
	for _, tree := range s.trees {
		if tree.Contains(id) {
			t = tree
			break
		}
	}
	if t == nil {
		s.mu.Unlock()
		return nil
	}
	removal, ok := t.Remove(id)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	postID := t.PostID()
	removedCount := comments.Size(removal.Node)
	s.adjustCommentCount(postID, -removedCount)
	s.mu.Unlock()

	err := s.gw.DeleteComment(ctx, id)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		s.mu.Lock()
		t.Restore(removal)
		s.adjustCommentCount(postID, removedCount)
		s.mu.Unlock()
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	return nil
}

func (s *Synchronizer) adjustCommentCount(postID string, delta int) {
	if i := s.index(postID); i >= 0 {
		s.posts[i].CommentCount += delta
		if s.posts[i].CommentCount < 0 {
			s.posts[i].CommentCount = 0
		}
	}
}

// ── Realtime events ─────────────────────────────────────

// Bind subscribes the synchronizer to the channel's feed events and
// its reconnect signal. The channel is injected and owned by the
// caller; Unbind releases everything without closing it.
func (s *Synchronizer) Bind(ch *realtime.Channel) {
	s.ch = ch
	s.subs[envelope.ActionNewPost] = ch.Subscribe(envelope.ActionNewPost, s.handleNewPost)
	s.subs[envelope.ActionPostDeleted] = ch.Subscribe(envelope.ActionPostDeleted, s.handlePostDeleted)
	s.subs[envelope.ActionPostUpdated] = ch.Subscribe(envelope.ActionPostUpdated, s.handlePostUpdated)
	s.subs[envelope.ActionReactionUpdate] = ch.Subscribe(envelope.ActionReactionUpdate, s.handleReactionUpdate)
	s.subs[envelope.ActionNewComment] = ch.Subscribe(envelope.ActionNewComment, s.handleNewComment)
	s.subs[envelope.ActionCommentDeleted] = ch.Subscribe(envelope.ActionCommentDeleted, s.handleCommentDeleted)
	s.reconnectHook = ch.OnReconnect(func() {
		// Heal off the connection goroutine so the read loop restarts
		// without waiting on the refetch.
		go func() {
			if err := s.Refresh(context.Background()); err != nil {
				log.Printf("[feed] reconnect refresh failed: %v", err)
			}
		}()
	})
}

func (s *Synchronizer) Unbind() {
	if s.ch == nil {
		return
	}
	for action, sub := range s.subs {
		s.ch.Unsubscribe(action, sub)
		delete(s.subs, action)
	}
	s.ch.RemoveReconnect(s.reconnectHook)
	s.ch = nil
}

func (s *Synchronizer) handleNewPost(env envelope.Envelope) {
	p, err := envelope.ParseData[models.Post](env)
	if err != nil || p.ID == "" {
		log.Printf("[feed] dropping malformed new_post: %v", err)
		return
	}

	s.mu.Lock()
	if _, gone := s.tombstones[p.ID]; gone {
		s.mu.Unlock()
		return
	}
	if s.index(p.ID) >= 0 {
		// Duplicate delivery, or our own optimistic create.
		s.mu.Unlock()
		return
	}
	s.posts = append([]models.Post{p}, s.posts...)
	s.mu.Unlock()
	s.persist()
}

func (s *Synchronizer) handlePostDeleted(env envelope.Envelope) {
	d, err := envelope.ParseData[envelope.Deleted](env)
	if err != nil || d.ID == "" {
		log.Printf("[feed] dropping malformed post_deleted: %v", err)
		return
	}

	s.mu.Lock()
	s.tombstones[d.ID] = struct{}{}
	s.remove(d.ID)
	delete(s.trees, d.ID)
	s.mu.Unlock()
	s.store.Clear(cache.CommentsKey(d.ID))
	s.persist()
}

func (s *Synchronizer) handlePostUpdated(env envelope.Envelope) {
	patch, err := envelope.ParseData[models.PostPatch](env)
	if err != nil || patch.ID == "" {
		log.Printf("[feed] dropping malformed post_updated: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(patch.ID)
	if i < 0 {
		return // absent or tombstoned; never resurrect
	}
	patch.Apply(&s.posts[i])
}

func (s *Synchronizer) handleReactionUpdate(env envelope.Envelope) {
	ru, err := envelope.ParseData[envelope.ReactionUpdate](env)
	if err != nil || ru.PostID == "" {
		log.Printf("[feed] dropping malformed reaction_updated: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(ru.PostID)
	if i < 0 {
		return
	}
	// Counts are server truth; the viewer's own state is not in the
	// event and stays untouched.
	s.posts[i].Reactions = reactions.ApplyUpdate(s.posts[i].Reactions, ru.Likes, ru.Dislikes)
}

func (s *Synchronizer) handleNewComment(env envelope.Envelope) {
	c, err := envelope.ParseData[models.Comment](env)
	if err != nil || c.ID == "" || c.PostID == "" {
		log.Printf("[feed] dropping malformed new_comment: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[c.PostID]
	if !ok {
		// Tree not loaded; just keep the count roughly honest.
		s.adjustCommentCount(c.PostID, 1)
		return
	}
	if t.Insert(c) {
		s.adjustCommentCount(c.PostID, 1)
	}
}

func (s *Synchronizer) handleCommentDeleted(env envelope.Envelope) {
	d, err := envelope.ParseData[envelope.Deleted](env)
	if err != nil || d.ID == "" {
		log.Printf("[feed] dropping malformed comment_deleted: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trees {
		if removal, ok := t.Remove(d.ID); ok {
			s.adjustCommentCount(t.PostID(), -comments.Size(removal.Node))
			return
		}
	}
}

// ── internals ───────────────────────────────────────────

// index must be called with s.mu held.
func (s *Synchronizer) index(id string) int {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i
		}
	}
	return -1
}

// remove must be called with s.mu held.
func (s *Synchronizer) remove(id string) {
	if i := s.index(id); i >= 0 {
		s.posts = append(s.posts[:i], s.posts[i+1:]...)
	}
}
