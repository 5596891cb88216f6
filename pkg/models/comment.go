package models

import "time"

// Comment is one node of a per-post reply tree. Replies hold the
// children in arrival order, which is not necessarily chronological.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Replies   []Comment `json:"replies,omitempty"`
}

// Root reports whether the comment sits at the top level of its post.
func (c Comment) Root() bool {
	return c.ParentID == nil || *c.ParentID == ""
}
