// Package auth provides the current-user lookup that switches storage between anonymous and authenticated modes.
package auth

import (
	"fmt"
	"strings"
	"sync"
)

// Provider reports the authenticated user, if any.
type Provider interface {
	CurrentUserID() (string, bool)
}

// Static is a fixed user. The zero value is anonymous.
type Static string

// CurrentUserID returns the user id when it is not empty.
func (s Static) CurrentUserID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// Session is a provider whose user changes on login and logout.
type Session struct {
	mu     sync.RWMutex
	userID string
}

// NewSession creates a session signed in as userID, or anonymous when userID is empty.
func NewSession(userID string) *Session {
	return &Session{userID: strings.TrimSpace(userID)}
}

// CurrentUserID returns the signed-in user.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// Login signs userID in and reports whether the user changed.
func (s *Session) Login(userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("login: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.userID != userID
	s.userID = userID
	return changed, nil
}

// Logout returns to anonymous mode.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
}
