// Package session provides the in-memory store of active call sessions.
//
// The store is the only shared mutable resource in the core besides the
// read-only catalog. The id -> session map is guarded by its own mutex, and
// every session carries a per-call lock so that no two transitions for the
// same external call id may interleave. Sessions are not persisted; restarts
// lose in-flight calls by design.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// entry pairs a session with the lock that serializes its transitions.
type entry struct {
	mu   sync.Mutex
	sess *models.CallSession
}

// Store maps external call ids to in-progress sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// GetOrCreate returns the session for the given external call id, creating it
// in the RINGING state when absent. The second return value reports whether a
// new session was created.
func (s *Store) GetOrCreate(externalCallID, callID string, now time.Time) (created bool, err error) {
	if externalCallID == "" {
		return false, models.ErrEmptyCallID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[externalCallID]; ok {
		return false, nil
	}
	s.entries[externalCallID] = &entry{sess: models.NewCallSession(externalCallID, callID, now)}
	slog.Debug("session: created", "external_call_id", externalCallID, "active", len(s.entries))
	return true, nil
}

// Do runs fn with the session for the given call id under its per-call lock.
// Transitions for one call are thereby processed one at a time; calls with
// different ids proceed concurrently. Returns models.ErrUnknownSession when
// no session exists.
func (s *Store) Do(externalCallID string, fn func(sess *models.CallSession) error) error {
	s.mu.RLock()
	e, ok := s.entries[externalCallID]
	s.mu.RUnlock()
	if !ok {
		return models.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Delete retires a session. Safe to call for ids that are already gone.
func (s *Store) Delete(externalCallID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[externalCallID]; ok {
		delete(s.entries, externalCallID)
		slog.Debug("session: retired", "external_call_id", externalCallID, "active", len(s.entries))
	}
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ActiveIDs returns the external call ids of all active sessions.
func (s *Store) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}
