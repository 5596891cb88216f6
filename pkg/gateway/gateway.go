// Package gateway is the typed client for the remote feed backend.
// Calls are plain request/response with no retry; the synchronizer
// decides what a failure means.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pulse/pkg/models"
)

// Remote failure taxonomy. Check with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrNetwork   = errors.New("network unavailable")
	ErrServer    = errors.New("server error")
)

type Client struct {
	baseURL string
	session models.Session
	http    *http.Client
}

func New(baseURL string, session models.Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) FetchPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := c.do(ctx, http.MethodGet, "/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) FetchComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	if err := c.do(ctx, http.MethodGet, "/comments/"+postID, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) CreatePost(ctx context.Context, draft models.PostDraft) (models.Post, error) {
	var p models.Post
	err := c.do(ctx, http.MethodPost, "/posts", draft, &p)
	return p, err
}

func (c *Client) UpdatePost(ctx context.Context, id, content string) (models.Post, error) {
	var p models.Post
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPut, "/posts/"+id, body, &p)
	return p, err
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+id, nil, nil)
}

// ReactionCounts is the authoritative tally returned by SetReaction.
type ReactionCounts struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

func (c *Client) SetReaction(ctx context.Context, postID string, kind models.Reaction) (ReactionCounts, error) {
	var counts ReactionCounts
	body := map[string]string{"kind": string(kind), "user_ref": c.session.UserRef}
	err := c.do(ctx, http.MethodPost, "/posts/"+postID+"/reactions", body, &counts)
	return counts, err
}

func (c *Client) AddComment(ctx context.Context, postID string, parentID *string, text string) (models.Comment, error) {
	var cm models.Comment
	body := map[string]interface{}{"post_id": postID, "content": text}
	if parentID != nil && *parentID != "" {
		body["parent_id"] = *parentID
	}
	err := c.do(ctx, http.MethodPost, "/comments", body, &cm)
	return cm, err
}

func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/comments/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w: %v", method, path, ErrServer, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrForbidden
	case code >= 500:
		return ErrServer
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrServer, code)
	}
}
