// Package memorytest provides store and embedder doubles for tests.
package memorytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
)

// ErrUnavailable is returned by a FlakyStore channel configured to fail.
var ErrUnavailable = errors.New("memorytest: store unavailable")

// FlakyStore wraps a Store and injects failures or latency per channel.
type FlakyStore struct {
	memory.Store

	mu     sync.Mutex
	fail   map[memory.Channel]error
	delay  map[memory.Channel]time.Duration
	hang   map[memory.Channel]time.Duration
	calls  map[memory.Channel]int
	recent error
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner memory.Store) *FlakyStore {
	return &FlakyStore{
		Store: inner,
		fail:  make(map[memory.Channel]error),
		delay: make(map[memory.Channel]time.Duration),
		hang:  make(map[memory.Channel]time.Duration),
		calls: make(map[memory.Channel]int),
	}
}

// FailChannel makes every Search on ch return err.
func (s *FlakyStore) FailChannel(ch memory.Channel, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[ch] = err
}

// DelayChannel makes every Search on ch block for d or until ctx is done.
func (s *FlakyStore) DelayChannel(ch memory.Channel, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay[ch] = d
}

// HangChannel makes every Search on ch sleep for d, ignoring cancellation,
// like a backend that does not honor its context.
func (s *FlakyStore) HangChannel(ch memory.Channel, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[ch] = d
}

// FailRecent makes Recent return err.
func (s *FlakyStore) FailRecent(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = err
}

// Calls returns how many searches were issued on ch.
func (s *FlakyStore) Calls(ch memory.Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ch]
}

// Search applies the configured delay and failure before delegating.
func (s *FlakyStore) Search(ctx context.Context, scopeID string, ch memory.Channel, query memory.Vector, k int, filter memory.Filter) ([]memory.Hit, error) {
	s.mu.Lock()
	s.calls[ch]++
	err := s.fail[ch]
	d := s.delay[ch]
	h := s.hang[ch]
	s.mu.Unlock()

	if h > 0 {
		time.Sleep(h)
	}
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return s.Store.Search(ctx, scopeID, ch, query, k, filter)
}

// Recent delegates unless a failure is configured.
func (s *FlakyStore) Recent(ctx context.Context, scopeID string, k int, filter memory.Filter) ([]memory.Record, error) {
	s.mu.Lock()
	err := s.recent
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Recent(ctx, scopeID, k, filter)
}

// FailingEmbedder always returns Err.
type FailingEmbedder struct {
	Dim int
	Err error
}

// Embed returns the configured error.
func (e FailingEmbedder) Embed(_ context.Context, _ string, _ memory.Channel) (memory.Vector, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return nil, ErrUnavailable
}

// Dimensions returns Dim.
func (e FailingEmbedder) Dimensions() int { return e.Dim }

// CountingEmbedder wraps an Embedder and counts calls per channel.
type CountingEmbedder struct {
	memory.Embedder

	mu    sync.Mutex
	calls map[memory.Channel]int
}

// NewCountingEmbedder wraps inner.
func NewCountingEmbedder(inner memory.Embedder) *CountingEmbedder {
	return &CountingEmbedder{Embedder: inner, calls: make(map[memory.Channel]int)}
}

// Embed records the call and delegates.
func (e *CountingEmbedder) Embed(ctx context.Context, text string, ch memory.Channel) (memory.Vector, error) {
	e.mu.Lock()
	e.calls[ch]++
	e.mu.Unlock()
	return e.Embedder.Embed(ctx, text, ch)
}

// Calls returns how many times ch was embedded.
func (e *CountingEmbedder) Calls(ch memory.Channel) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[ch]
}
