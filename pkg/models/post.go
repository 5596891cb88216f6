package models

import "time"

// Reaction is the viewer's own reaction to a post.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

func (r Reaction) Valid() bool {
	return r == ReactionNone || r == ReactionLike || r == ReactionDislike
}

// ReactionSummary carries the aggregate counts for everyone plus the
// viewer's own state. Viewer is never derived from aggregate events.
type ReactionSummary struct {
	Likes    int      `json:"likes"`
	Dislikes int      `json:"dislikes"`
	Viewer   Reaction `json:"viewer_reaction,omitempty"`
}

type Post struct {
	ID           string          `json:"id"`
	Author       string          `json:"author"`
	AuthorName   string          `json:"author_name,omitempty"`
	Content      string          `json:"content"`
	MediaPath    string          `json:"media_path,omitempty"`
	CommentCount int             `json:"comment_count"`
	Reactions    ReactionSummary `json:"reactions"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PostDraft is the payload for creating a post.
type PostDraft struct {
	Content   string `json:"content"`
	MediaPath string `json:"media_path,omitempty"`
}

// PostPatch is a partial post update: nil fields are left untouched
// when merged into an existing post.
type PostPatch struct {
	ID           string  `json:"id"`
	Content      *string `json:"content,omitempty"`
	MediaPath    *string `json:"media_path,omitempty"`
	CommentCount *int    `json:"comment_count,omitempty"`
}

// Apply shallow-merges the patch into p.
func (pp PostPatch) Apply(p *Post) {
	if pp.Content != nil {
		p.Content = *pp.Content
	}
	if pp.MediaPath != nil {
		p.MediaPath = *pp.MediaPath
	}
	if pp.CommentCount != nil {
		p.CommentCount = *pp.CommentCount
	}
}
