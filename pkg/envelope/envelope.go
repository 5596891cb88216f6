// Package envelope defines the JSON frame exchanged on the realtime
// channel. Every push event is one envelope; the action tells the
// consumer how to parse the data payload.
package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Actions pushed by the feed backend. Delivery is at-least-once with
// no ordering guarantee; consumers must merge idempotently.
const (
	ActionNewPost        = "new_post"
	ActionPostDeleted    = "post_deleted"
	ActionPostUpdated    = "post_updated"
	ActionReactionUpdate = "reaction_updated"
	ActionNewComment     = "new_comment"
	ActionCommentDeleted = "comment_deleted"
)

type Envelope struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Service   string          `json:"service,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp int64           `json:"ts"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Deleted is the payload of post_deleted and comment_deleted events.
type Deleted struct {
	ID string `json:"id"`
}

// ReactionUpdate carries fresh aggregate counts for one post. It says
// nothing about whose reaction changed, so it must never be used to
// derive the viewer's own state.
type ReactionUpdate struct {
	PostID   string `json:"post_id"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

func New(action, service string) Envelope {
	return Envelope{
		ID:        generateID(),
		Action:    action,
		Service:   service,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewEvent(action, service string, data interface{}) (Envelope, error) {
	e := New(action, service)
	raw, err := json.Marshal(data)
	if err != nil {
		return e, err
	}
	e.Data = raw
	return e, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

func ParseData[T any](e Envelope) (T, error) {
	var v T
	err := json.Unmarshal(e.Data, &v)
	return v, err
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
