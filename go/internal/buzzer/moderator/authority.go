package moderator

import (
	"crypto/subtle"
	"errors"

	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
)

// ErrNotModerator is returned when a non-moderator session asks for a reset
var ErrNotModerator = errors.New("session is not a moderator")

// Authority gates the reset capability behind a shared secret.
// Moderator status lasts for the lifetime of the connection.
type Authority struct {
	store        *session.Store
	secret       []byte
	reservedName string
}

// NewAuthority creates an authority for the given secret. An empty secret
// disables moderator access.
func NewAuthority(store *session.Store, secret, reservedName string) *Authority {
	return &Authority{
		store:        store,
		secret:       []byte(secret),
		reservedName: reservedName,
	}
}

// Submit grants moderator status to s when code matches the secret and
// reports whether it did. A mismatch changes nothing.
func (a *Authority) Submit(s *session.Session, code string) bool {
	if len(a.secret) == 0 {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(code), a.secret) != 1 {
		return false
	}

	s.IsModerator = true
	s.DisplayName = a.reservedName
	return true
}

// Reset clears every session's timing on behalf of a moderator
func (a *Authority) Reset(s *session.Session) error {
	if !s.IsModerator {
		return ErrNotModerator
	}
	a.store.ResetTiming()
	return nil
}

// ResetAll clears every session's timing without an authorization check.
// It backs the operator reset signal.
func (a *Authority) ResetAll() {
	a.store.ResetTiming()
}
