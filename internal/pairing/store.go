// Package pairing tracks in-flight pairing handshakes and their validity
// window.
//
// A session's existence signals "pending"; its absence signals
// none/expired/completed. The TTL gate runs on access, not only at
// creation, so a delayed accept cannot revive an abandoned handshake.
package pairing

import (
	"errors"
	"sync"
	"time"

	"github.com/devicelink/signaling-relay/internal/ratelimit"
)

var (
	ErrNotFound = errors.New("pairing session not found")
	ErrExpired  = errors.New("pairing session expired")
)

// Session links an initiating and a target device by a shared identifier.
// CreatedAt is set once and never refreshed by later handshake steps.
type Session struct {
	ID           string
	CreatedAt    time.Time
	FromDeviceID string
	ToDeviceID   string
}

// Store holds pending pairing sessions keyed by session_id.
type Store struct {
	clock ratelimit.Clock
	ttl   time.Duration

	mu       sync.Mutex
	sessions map[string]Session
}

func NewStore(ttl time.Duration, clock ratelimit.Clock) *Store {
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Store{
		clock:    clock,
		ttl:      ttl,
		sessions: make(map[string]Session),
	}
}

// Create upserts a pending session. The session_id is client-chosen;
// creating over an existing id restarts its validity window.
func (s *Store) Create(sessionID, fromDeviceID, toDeviceID string) {
	s.mu.Lock()
	s.sessions[sessionID] = Session{
		ID:           sessionID,
		CreatedAt:    s.clock.Now(),
		FromDeviceID: fromDeviceID,
		ToDeviceID:   toDeviceID,
	}
	s.mu.Unlock()
}

// Get returns a pending session. An expired session is deleted as part of
// the lookup and reported as ErrExpired, so a retry of the same message
// yields ErrNotFound rather than repeating the expiry race.
func (s *Store) Get(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.clock.Now().Sub(sess.CreatedAt) > s.ttl {
		delete(s.sessions, sessionID)
		return Session{}, ErrExpired
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// Sweep deletes every expired session and returns the number removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
