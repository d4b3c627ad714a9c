package memory

import (
	"context"
	"sync"
)

// InMemoryHistoryStore is a thread-safe, in-memory implementation of HistoryStore.
type InMemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewInMemoryHistoryStore creates a new empty history store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		sessions: make(map[string][]Turn),
	}
}

// Compile-time interface check.
var _ HistoryStore = (*InMemoryHistoryStore)(nil)

// Append adds turns to the session's history.
func (s *InMemoryHistoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

// Recent returns the n most recent turns for a session.
func (s *InMemoryHistoryStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if n <= 0 || len(turns) == 0 {
		return nil, nil
	}
	if n > len(turns) {
		n = len(turns)
	}

	result := make([]Turn, n)
	copy(result, turns[len(turns)-n:])
	return result, nil
}

// Trim keeps the newest keep turns of every session.
func (s *InMemoryHistoryStore) Trim(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	removed := 0
	for id, turns := range s.sessions {
		if len(turns) <= keep {
			continue
		}
		drop := len(turns) - keep
		kept := make([]Turn, keep)
		copy(kept, turns[drop:])
		s.sessions[id] = kept
		removed += drop
	}
	return removed, nil
}

// Purge removes all history for a session.
func (s *InMemoryHistoryStore) Purge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len returns the number of turns stored for a session.
func (s *InMemoryHistoryStore) Len(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}
