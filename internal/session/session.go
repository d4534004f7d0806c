// Package session holds the signed-in identity of the CLI client.
package session

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the client's bearer token. It serves as both the engine's
// CurrentUser and the remote client's TokenSource. The token is not verified
// here; the API does that on every request.
type Session struct {
	mu    sync.RWMutex
	token string
	sub   string
}

// New returns a Session for token, which may be empty.
func New(token string) *Session {
	s := &Session{}
	s.SetToken(token)
	return s
}

// SetToken replaces the token, e.g. after login. An unparsable token signs the user out.
func (s *Session) SetToken(token string) {
	sub := subject(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub == "" {
		s.token, s.sub = "", ""
		return
	}
	s.token, s.sub = token, sub
}

// Token returns the bearer token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ID returns the signed-in user's ID.
func (s *Session) ID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub, s.sub != ""
}

func subject(token string) string {
	if token == "" {
		return ""
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
