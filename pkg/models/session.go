package models

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session identifies the current viewer. It is built explicitly by the
// owner of the synchronizer and passed in at construction; nothing in
// the core reads ambient global user state.
type Session struct {
	UserRef   string    `json:"user_ref"`
	Username  string    `json:"username"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Anonymous() bool {
	return s.UserRef == ""
}

// SessionFromToken builds a Session from a signed access token. The
// token is kept verbatim for the Authorization header on remote calls.
func SessionFromToken(tokenStr, secret string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return Session{}, fmt.Errorf("session token invalid")
	}

	claims := token.Claims.(*jwt.MapClaims)
	s := Session{Token: tokenStr}
	if uid, ok := (*claims)["uuid"].(string); ok {
		s.UserRef = uid
	}
	if uname, ok := (*claims)["username"].(string); ok {
		s.Username = uname
	}
	if exp, ok := (*claims)["exp"].(float64); ok {
		s.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return s, nil
}
