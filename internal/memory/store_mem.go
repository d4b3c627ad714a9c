package memory

import (
	"context"
	"slices"
	"sync"
)

// partition holds the records of one scope.
type partition struct {
	records []Record
	index   map[string]int // id → index in records slice
}

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Search is a brute-force cosine scan over the scope partition.
type InMemoryStore struct {
	mu     sync.RWMutex
	dim    int
	scopes map[string]*partition
}

// NewInMemoryStore creates an empty store for vectors of length dim.
func NewInMemoryStore(dim int) *InMemoryStore {
	return &InMemoryStore{
		dim:    dim,
		scopes: make(map[string]*partition),
	}
}

// Compile-time interface checks.
var (
	_ Store       = (*InMemoryStore)(nil)
	_ ScopeLister = (*InMemoryStore)(nil)
)

// Put validates and stores a record.
func (s *InMemoryStore) Put(_ context.Context, rec Record) error {
	if err := rec.Validate(s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.scopes[rec.ScopeID]
	if !ok {
		p = &partition{index: make(map[string]int)}
		s.scopes[rec.ScopeID] = p
	}
	if _, exists := p.index[rec.ID]; exists {
		return ErrDuplicateRecord
	}

	p.index[rec.ID] = len(p.records)
	p.records = append(p.records, rec.Clone())
	return nil
}

// Search scans the scope partition for the nearest neighbors of query.
func (s *InMemoryStore) Search(_ context.Context, scopeID string, ch Channel, query Vector, k int, filter Filter) ([]Hit, error) {
	if err := CheckQuery(ch, query, s.dim); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scopes[scopeID]
	if !ok || k <= 0 {
		return nil, nil
	}

	candidates := make([]Record, 0, len(p.records))
	for i := range p.records {
		if filter.Match(p.records[i]) {
			candidates = append(candidates, p.records[i])
		}
	}
	return RankByCosine(candidates, ch, query, k), nil
}

// Get returns a copy of the record with the given id.
func (s *InMemoryStore) Get(_ context.Context, scopeID, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scopes[scopeID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	idx, ok := p.index[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return p.records[idx].Clone(), nil
}

// Recent returns up to k matching records, newest first.
func (s *InMemoryStore) Recent(_ context.Context, scopeID string, k int, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scopes[scopeID]
	if !ok || k <= 0 {
		return nil, nil
	}

	var matched []Record
	for i := range p.records {
		if filter.Match(p.records[i]) {
			matched = append(matched, p.records[i])
		}
	}
	SortRecent(matched)
	if len(matched) > k {
		matched = matched[:k]
	}

	result := make([]Record, len(matched))
	for i := range matched {
		result[i] = matched[i].Clone()
	}
	return result, nil
}

// Count returns the number of records in the scope.
func (s *InMemoryStore) Count(_ context.Context, scopeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scopes[scopeID]
	if !ok {
		return 0, nil
	}
	return len(p.records), nil
}

// Dimensions returns the vector length accepted by the store.
func (s *InMemoryStore) Dimensions() int {
	return s.dim
}

// Scopes returns the ids of every non-empty scope, sorted.
func (s *InMemoryStore) Scopes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.scopes))
	for id := range s.scopes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
