package session

import (
	"encoding/base64"
	"log/slog"
	"sync/atomic"
)

// Token is an opaque header value proving the session is authenticated.
type Token string

// BasicToken derives the Basic-auth header value for username:password.
func BasicToken(username, password string) Token {
	raw := username + ":" + password
	return Token("Basic " + base64.StdEncoding.EncodeToString([]byte(raw)))
}

// credential is the immutable unit swapped by Set and Clear.
type credential struct {
	username string
	token    Token
}

// Store is the session token store. The zero value is ready to use and
// holds no credential.
type Store struct {
	current atomic.Pointer[credential]
	logger  *slog.Logger
}

// NewStore returns an empty Store that logs through logger (nil uses the
// default logger).
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Set derives the credential for username/password and installs it,
// replacing any previous value.
func (s *Store) Set(username, password string) {
	s.current.Store(&credential{username: username, token: BasicToken(username, password)})
	s.log().Debug("credential set", "username", username)
}

// Clear removes the credential. Requests built after Clear returns are sent
// unauthenticated.
func (s *Store) Clear() {
	if old := s.current.Swap(nil); old != nil {
		s.log().Debug("credential cleared", "username", old.username)
	}
}

// Current returns the installed token, if any. It never blocks.
func (s *Store) Current() (Token, bool) {
	c := s.current.Load()
	if c == nil {
		return "", false
	}
	return c.token, true
}

// Username returns the user the current credential belongs to.
func (s *Store) Username() (string, bool) {
	c := s.current.Load()
	if c == nil {
		return "", false
	}
	return c.username, true
}
