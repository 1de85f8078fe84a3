package session

import (
	"errors"

	"github.com/jonboulle/clockwork"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Store holds one Session per live connection, keyed by connection ID.
// It is not safe for concurrent use; the dispatch loop owns it.
type Store struct {
	clock    clockwork.Clock
	sessions map[string]*Session

	// creation order, used as the tie-break order for rankings
	order []string
}

// NewStore creates an empty session store
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// Create registers a fresh session for a new connection. The display name
// defaults to the connection ID; color, probe and press instant start unset.
func (st *Store) Create(id string) (*Session, error) {
	if _, exists := st.sessions[id]; exists {
		return nil, ErrSessionExists
	}

	s := &Session{
		ID:          id,
		DisplayName: id,
		ConnectedAt: st.clock.Now(),
	}
	st.sessions[id] = s
	st.order = append(st.order, id)
	return s, nil
}

// Get returns the session for a connection
func (st *Store) Get(id string) (*Session, error) {
	s, exists := st.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete destroys the session for a connection and returns it.
// The returned session must not be used to mutate state afterwards.
func (st *Store) Delete(id string) (*Session, bool) {
	s, exists := st.sessions[id]
	if !exists {
		return nil, false
	}

	delete(st.sessions, id)
	for i, sid := range st.order {
		if sid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	return s, true
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	return len(st.sessions)
}

// All returns every live session in creation order
func (st *Store) All() []*Session {
	all := make([]*Session, 0, len(st.order))
	for _, id := range st.order {
		all = append(all, st.sessions[id])
	}
	return all
}

// ColorHolder returns the live session currently holding color c
func (st *Store) ColorHolder(c Color) (*Session, bool) {
	if !c.IsSet() {
		return nil, false
	}
	for _, s := range st.sessions {
		if s.Color == c {
			return s, true
		}
	}
	return nil, false
}

// ResetTiming clears probes and press instants on every live session.
// Names, colors and moderator flags are kept.
func (st *Store) ResetTiming() {
	for _, s := range st.sessions {
		s.ClearTiming()
	}
}
