// Package session keeps bounded per-session dialogue history in memory.
package session

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"persona-rag/internal/domain"
)

// DefaultMaxTurns bounds each session's history.
const DefaultMaxTurns = 20

// Store is safe for concurrent use. Each session has its own lock, so
// appends to one session never block readers of another.
type Store struct {
	maxTurns int

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{maxTurns: maxTurns, sessions: make(map[string]*session)}
}

// NewID returns a fresh, sortable session id.
func NewID() string {
	return ulid.Make().String()
}

// Append adds a turn, creating the session on first use, and drops the
// oldest turns beyond the bound.
func (s *Store) Append(id string, role domain.Role, content string) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, domain.Turn{Role: role, Content: content})
	if over := len(sess.turns) - s.maxTurns; over > 0 {
		// Copy down so the evicted prefix can be collected.
		n := copy(sess.turns, sess.turns[over:])
		clear(sess.turns[n:])
		sess.turns = sess.turns[:n]
	}
}

// History returns a copy of the session's turns, oldest first. Unknown ids
// yield an empty history.
func (s *Store) History(id string) []domain.Turn {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return []domain.Turn{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]domain.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Clear removes the session. Clearing an unknown id is a no-op.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) getOrCreate(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[id] = sess
	return sess
}
