// devserver is an in-memory stand-in for the production feed backend:
// the same REST contract the gateway speaks and the same websocket
// events the realtime channel consumes. Used for local development and
// manual testing of the reconciliation layer — it is not a product
// backend, so nothing here persists.
package main

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"pulse/pkg/envelope"
	"pulse/pkg/models"
)

type server struct {
	mu        sync.Mutex
	posts     []models.Post
	comments  []models.Comment
	reactions map[string]map[string]models.Reaction // postID → userRef → kind

	connMu  sync.Mutex
	clients map[*websocket.Conn]*clientConn

	secret string
}

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (cc *clientConn) send(data []byte) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if err := cc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[devserver] ws send: %v", err)
	}
}

func main() {
	godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-key-change-in-production"
	}

	s := &server{
		reactions: make(map[string]map[string]models.Reaction),
		clients:   make(map[*websocket.Conn]*clientConn),
		secret:    secret,
	}

	app := fiber.New(fiber.Config{AppName: "pulse-devserver"})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/posts", s.listPosts)
	api.Post("/posts", s.createPost)
	api.Put("/posts/:id", s.updatePost)
	api.Delete("/posts/:id", s.deletePost)
	api.Post("/posts/:id/reactions", s.setReaction)
	api.Get("/comments/:postId", s.listComments)
	api.Post("/comments", s.addComment)
	api.Delete("/comments/:id", s.deleteComment)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	app.Get("/ws", websocket.New(s.handleWS))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}
	log.Printf("[devserver] listening on :%s", port)
	if err := app.Listen("0.0.0.0:" + port); err != nil {
		log.Fatalf("[devserver] failed to start: %v", err)
	}
}

// ── websocket fanout ────────────────────────────────────

func (s *server) handleWS(c *websocket.Conn) {
	cc := &clientConn{conn: c}

	s.connMu.Lock()
	s.clients[c] = cc
	s.connMu.Unlock()
	log.Printf("[devserver] ws client connected (%d total)", s.clientCount())

	defer func() {
		s.connMu.Lock()
		delete(s.clients, c)
		s.connMu.Unlock()
		c.Close()
		log.Printf("[devserver] ws client disconnected (%d total)", s.clientCount())
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		if strings.Contains(string(raw), `"ping"`) {
			pong := envelope.New("pong", "feed")
			data, _ := pong.Marshal()
			cc.send(data)
		}
	}
}

func (s *server) clientCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.clients)
}

func (s *server) broadcast(action string, data interface{}) {
	env, err := envelope.NewEvent(action, "feed", data)
	if err != nil {
		return
	}
	raw, err := env.Marshal()
	if err != nil {
		return
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for _, cc := range s.clients {
		cc.send(raw)
	}
}

// ── auth ────────────────────────────────────────────────

// userRef pulls the caller's identity out of the bearer token, the
// same shape the production backend issues. Empty means anonymous.
func (s *server) userRef(c *fiber.Ctx) (string, string) {
	auth := c.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ""
	}
	token, err := jwt.ParseWithClaims(auth[7:], &jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.secret), nil
	})
	if err != nil || !token.Valid {
		return "", ""
	}
	claims := token.Claims.(*jwt.MapClaims)
	ref, _ := (*claims)["uuid"].(string)
	name, _ := (*claims)["username"].(string)
	return ref, name
}

// ── posts ───────────────────────────────────────────────

func (s *server) listPosts(c *fiber.Ctx) error {
	ref, _ := s.userRef(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Post, len(s.posts))
	copy(out, s.posts)
	for i := range out {
		out[i].Reactions.Viewer = s.reactions[out[i].ID][ref]
	}
	return c.JSON(out)
}

func (s *server) createPost(c *fiber.Ctx) error {
	ref, name := s.userRef(c)
	if ref == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}

	var draft models.PostDraft
	if err := c.BodyParser(&draft); err != nil || strings.TrimSpace(draft.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content required"})
	}

	p := models.Post{
		ID:         uuid.NewString(),
		Author:     ref,
		AuthorName: name,
		Content:    draft.Content,
		MediaPath:  draft.MediaPath,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.posts = append([]models.Post{p}, s.posts...)
	s.mu.Unlock()

	s.broadcast(envelope.ActionNewPost, p)
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (s *server) updatePost(c *fiber.Ctx) error {
	ref, _ := s.userRef(c)
	id := c.Params("id")

	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad payload"})
	}

	s.mu.Lock()
	i := s.indexPost(id)
	if i < 0 {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
	}
	if s.posts[i].Author != ref {
		s.mu.Unlock()
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your post"})
	}
	s.posts[i].Content = body.Content
	p := s.posts[i]
	s.mu.Unlock()

	s.broadcast(envelope.ActionPostUpdated, models.PostPatch{ID: id, Content: &body.Content})
	return c.JSON(p)
}

func (s *server) deletePost(c *fiber.Ctx) error {
	ref, _ := s.userRef(c)
	id := c.Params("id")

	s.mu.Lock()
	i := s.indexPost(id)
	if i < 0 {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
	}
	if s.posts[i].Author != ref {
		s.mu.Unlock()
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your post"})
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	delete(s.reactions, id)
	kept := s.comments[:0]
	for _, cm := range s.comments {
		if cm.PostID != id {
			kept = append(kept, cm)
		}
	}
	s.comments = kept
	s.mu.Unlock()

	s.broadcast(envelope.ActionPostDeleted, envelope.Deleted{ID: id})
	return c.JSON(fiber.Map{"id": id, "status": "deleted"})
}

func (s *server) setReaction(c *fiber.Ctx) error {
	ref, _ := s.userRef(c)
	if ref == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}
	id := c.Params("id")

	var body struct {
		Kind models.Reaction `json:"kind"`
	}
	if err := c.BodyParser(&body); err != nil || !body.Kind.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad reaction kind"})
	}

	s.mu.Lock()
	i := s.indexPost(id)
	if i < 0 {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
	}

	if s.reactions[id] == nil {
		s.reactions[id] = make(map[string]models.Reaction)
	}
	// Same toggle rule the client applies optimistically.
	if s.reactions[id][ref] == body.Kind {
		delete(s.reactions[id], ref)
	} else {
		s.reactions[id][ref] = body.Kind
	}

	likes, dislikes := 0, 0
	for _, k := range s.reactions[id] {
		switch k {
		case models.ReactionLike:
			likes++
		case models.ReactionDislike:
			dislikes++
		}
	}
	s.posts[i].Reactions.Likes = likes
	s.posts[i].Reactions.Dislikes = dislikes
	s.mu.Unlock()

	s.broadcast(envelope.ActionReactionUpdate, envelope.ReactionUpdate{
		PostID: id, Likes: likes, Dislikes: dislikes,
	})
	return c.JSON(fiber.Map{"likes": likes, "dislikes": dislikes})
}

// ── comments ────────────────────────────────────────────

func (s *server) listComments(c *fiber.Ctx) error {
	postID := c.Params("postId")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Comment, 0)
	for _, cm := range s.comments {
		if cm.PostID == postID {
			out = append(out, cm)
		}
	}
	return c.JSON(out)
}

func (s *server) addComment(c *fiber.Ctx) error {
	ref, _ := s.userRef(c)
	if ref == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}

	var body struct {
		PostID   string  `json:"post_id"`
		ParentID *string `json:"parent_id"`
		Content  string  `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content required"})
	}

	s.mu.Lock()
	if s.indexPost(body.PostID) < 0 {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
	}
	cm := models.Comment{
		ID:        uuid.NewString(),
		PostID:    body.PostID,
		ParentID:  body.ParentID,
		Author:    ref,
		Content:   body.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.comments = append(s.comments, cm)
	if i := s.indexPost(body.PostID); i >= 0 {
		s.posts[i].CommentCount++
	}
	s.mu.Unlock()

	s.broadcast(envelope.ActionNewComment, cm)
	return c.Status(fiber.StatusCreated).JSON(cm)
}

func (s *server) deleteComment(c *fiber.Ctx) error {
	id := c.Params("id")

	s.mu.Lock()
	var postID string
	for _, cm := range s.comments {
		if cm.ID == id {
			postID = cm.PostID
			break
		}
	}
	if postID == "" {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "comment not found"})
	}

	doomed := map[string]bool{id: true}
	// Cascade: sweep until no more descendants are found.
	for {
		grew := false
		for _, cm := range s.comments {
			if cm.ParentID != nil && doomed[*cm.ParentID] && !doomed[cm.ID] {
				doomed[cm.ID] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	kept := s.comments[:0]
	removed := 0
	for _, cm := range s.comments {
		if doomed[cm.ID] {
			removed++
			continue
		}
		kept = append(kept, cm)
	}
	s.comments = kept
	if i := s.indexPost(postID); i >= 0 {
		s.posts[i].CommentCount -= removed
		if s.posts[i].CommentCount < 0 {
			s.posts[i].CommentCount = 0
		}
	}
	s.mu.Unlock()

	s.broadcast(envelope.ActionCommentDeleted, envelope.Deleted{ID: id})
	return c.JSON(fiber.Map{"id": id, "status": "deleted"})
}

// indexPost must be called with s.mu held.
func (s *server) indexPost(id string) int {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i
		}
	}
	return -1
}
