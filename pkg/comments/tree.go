// Package comments maintains the reply tree of a single post. The tree
// owns its structural invariants: ids are unique within the post, a
// non-root comment attaches only under an existing parent, and deleted
// ids are tombstoned so duplicate or late events cannot recreate them.
package comments

import (
	"log"

	"pulse/pkg/models"
)

// Order is the display order for root comments. The original client
// sorted newest first; both are supported.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type Tree struct {
	postID  string
	order   Order
	roots   []models.Comment
	orphans []models.Comment
	dead    map[string]struct{}
}

func New(postID string, order Order) *Tree {
	return &Tree{
		postID: postID,
		order:  order,
		dead:   make(map[string]struct{}),
	}
}

// Insert merges one comment into the tree. Duplicates and tombstoned
// ids are no-ops. A comment whose parent is not (yet) known is held as
// an orphan and re-attempted on the next Rebuild; it is not silently
// turned into a root.
func (t *Tree) Insert(c models.Comment) bool {
	if !t.insertable(c) {
		return false
	}
	if t.attach(c) {
		return true
	}
	t.orphans = append(t.orphans, c)
	return false
}

func (t *Tree) insertable(c models.Comment) bool {
	if c.ID == "" {
		return false
	}
	if _, gone := t.dead[c.ID]; gone {
		return false
	}
	return !t.Contains(c.ID)
}

// attach places the comment if its slot exists; it never holds orphans.
func (t *Tree) attach(c models.Comment) bool {
	if c.Root() {
		c.Replies = nil
		if t.order == NewestFirst {
			t.roots = append([]models.Comment{c}, t.roots...)
		} else {
			t.roots = append(t.roots, c)
		}
		return true
	}

	if parent := findNode(t.roots, *c.ParentID); parent != nil {
		c.Replies = nil
		parent.Replies = append(parent.Replies, c)
		return true
	}
	return false
}

// Removal is a detached subtree, kept so an optimistic delete can be
// rolled back into its original position.
type Removal struct {
	Node     models.Comment
	ParentID *string
	Index    int
}

// Remove deletes the comment and its entire subtree (cascade policy;
// see DESIGN.md). The removed ids become tombstones. Absent ids are a
// no-op — deletion is never an error here.
func (t *Tree) Remove(id string) (Removal, bool) {
	// Orphans are not part of the tree proper yet.
	for i, o := range t.orphans {
		if o.ID == id {
			t.orphans = append(t.orphans[:i], t.orphans[i+1:]...)
			t.dead[id] = struct{}{}
			return Removal{Node: o, ParentID: o.ParentID, Index: -1}, true
		}
	}

	node, parentID, idx, ok := detach(&t.roots, nil, id)
	if !ok {
		return Removal{}, false
	}

	t.bury(node)
	return Removal{Node: node, ParentID: parentID, Index: idx}, true
}

// Restore undoes a Remove: tombstones are lifted and the subtree goes
// back where it was. Used only for rolling back an optimistic delete
// whose remote call failed.
func (t *Tree) Restore(r Removal) {
	t.unbury(r.Node)

	if r.Node.Root() {
		if r.Index < 0 || r.Index > len(t.roots) {
			t.roots = append(t.roots, r.Node)
			return
		}
		t.roots = append(t.roots[:r.Index], append([]models.Comment{r.Node}, t.roots[r.Index:]...)...)
		return
	}

	if parent := findNode(t.roots, *r.Node.ParentID); parent != nil {
		if r.Index < 0 || r.Index > len(parent.Replies) {
			parent.Replies = append(parent.Replies, r.Node)
			return
		}
		parent.Replies = append(parent.Replies[:r.Index], append([]models.Comment{r.Node}, parent.Replies[r.Index:]...)...)
		return
	}

	// Parent vanished while the delete was in flight; hold as orphan.
	t.orphans = append(t.orphans, r.Node)
}

// Confirm swaps a provisional (optimistic) comment for the
// authoritative one returned by the server, keeping any replies that
// attached under the provisional id in the meantime. If the
// authoritative id is already present — its new_comment event won the
// race — the provisional node is dropped instead.
func (t *Tree) Confirm(provisionalID string, authoritative models.Comment) {
	if t.Contains(authoritative.ID) && provisionalID != authoritative.ID {
		t.discard(provisionalID)
		return
	}
	node := findNode(t.roots, provisionalID)
	if node == nil {
		t.Insert(authoritative)
		return
	}
	replies := node.Replies
	*node = authoritative
	node.Replies = replies
	rehome(node.Replies, node.ID)
}

// Rebuild replaces the tree from a full refetch, then gives every held
// orphan its one retry. Orphans that still fail to attach are
// discarded — logged, not fatal.
func (t *Tree) Rebuild(list []models.Comment) {
	t.roots = nil
	held := t.orphans
	t.orphans = nil

	pending := make([]models.Comment, 0, len(list)+len(held))
	for _, c := range list {
		if _, gone := t.dead[c.ID]; gone {
			continue
		}
		pending = append(pending, c)
	}
	for _, c := range held {
		if _, gone := t.dead[c.ID]; gone {
			continue
		}
		pending = append(pending, c)
	}

	// Attach in passes: children may precede parents in the payload.
	for len(pending) > 0 {
		progress := false
		var rest []models.Comment
		for _, c := range pending {
			if !t.insertable(c) {
				continue
			}
			if t.attach(c) {
				progress = true
			} else {
				rest = append(rest, c)
			}
		}
		pending = rest
		if !progress {
			break
		}
	}

	// Whatever is left has had its one retry.
	for _, o := range pending {
		log.Printf("[comments] discarding orphan comment %s (parent never arrived)", o.ID)
	}
}

// Roots returns a deep-enough copy for rendering: callers must not
// mutate the canonical tree.
func (t *Tree) Roots() []models.Comment {
	out := make([]models.Comment, len(t.roots))
	copy(out, t.roots)
	return out
}

func (t *Tree) Contains(id string) bool {
	if findNode(t.roots, id) != nil {
		return true
	}
	for _, o := range t.orphans {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Len counts attached comments, orphans excluded.
func (t *Tree) Len() int {
	return countNodes(t.roots)
}

func (t *Tree) PostID() string { return t.postID }

func (t *Tree) discard(id string) {
	if node, _, _, ok := detach(&t.roots, nil, id); ok {
		// Children of a dropped provisional node re-attach under the
		// authoritative id on the next insert pass; keep them.
		for _, child := range node.Replies {
			t.orphans = append(t.orphans, child)
		}
	}
}

func (t *Tree) bury(c models.Comment) {
	t.dead[c.ID] = struct{}{}
	for _, r := range c.Replies {
		t.bury(r)
	}
}

func (t *Tree) unbury(c models.Comment) {
	delete(t.dead, c.ID)
	for _, r := range c.Replies {
		t.unbury(r)
	}
}

func findNode(nodes []models.Comment, id string) *models.Comment {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
		if n := findNode(nodes[i].Replies, id); n != nil {
			return n
		}
	}
	return nil
}

// detach removes the first node matching id and returns it along with
// where it sat. parentID is nil for roots.
func detach(nodes *[]models.Comment, parentID *string, id string) (models.Comment, *string, int, bool) {
	for i := range *nodes {
		if (*nodes)[i].ID == id {
			node := (*nodes)[i]
			*nodes = append((*nodes)[:i], (*nodes)[i+1:]...)
			return node, parentID, i, true
		}
	}
	for i := range *nodes {
		pid := (*nodes)[i].ID
		if node, p, idx, ok := detach(&(*nodes)[i].Replies, &pid, id); ok {
			return node, p, idx, ok
		}
	}
	return models.Comment{}, nil, 0, false
}

func rehome(nodes []models.Comment, parentID string) {
	for i := range nodes {
		pid := parentID
		nodes[i].ParentID = &pid
	}
}

// Size counts a comment plus its whole subtree.
func Size(c models.Comment) int {
	return 1 + countNodes(c.Replies)
}

func countNodes(nodes []models.Comment) int {
	n := len(nodes)
	for i := range nodes {
		n += countNodes(nodes[i].Replies)
	}
	return n
}
