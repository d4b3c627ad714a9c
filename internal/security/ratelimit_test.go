package security

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ReadsPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(KindRead, "owner-1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow(KindRead, "owner-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{WritesPerMin: 1})

	if err := rl.Allow(KindWrite, "owner-1"); err != nil {
		t.Fatalf("owner-1: %v", err)
	}
	if err := rl.Allow(KindWrite, "owner-2"); err != nil {
		t.Fatalf("owner-2 limited by owner-1: %v", err)
	}
	if err := rl.Allow(KindRead, "owner-1"); err != nil {
		t.Fatalf("reads limited by writes: %v", err)
	}
	if err := rl.Allow(KindWrite, "owner-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{ReadsPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindRead, "k")
	_ = rl.Allow(KindRead, "k")

	if err := rl.Allow(KindRead, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// Advance past the window.
	now = now.Add(61 * time.Second)

	if err := rl.Allow(KindRead, "k"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow("unknown_kind", "k"); err != nil {
			t.Fatalf("expected nil for unknown kind, got %v", err)
		}
	}
	if rl.Len() != 0 {
		t.Errorf("Len() = %d, unknown kinds must not allocate buckets", rl.Len())
	}
}

func TestRateLimiter_BoundedKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MaxKeys: 3})
	rl.now = func() time.Time { return now }

	for i := range 10 {
		now = now.Add(time.Second)
		if err := rl.Allow(KindRead, fmt.Sprintf("owner-%d", i)); err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if rl.Len() > 3 {
			t.Fatalf("Len() = %d after %d keys, want <= 3", rl.Len(), i+1)
		}
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	want := rateLimitConfigDefaults()
	if rl.limits[KindRead] != want.ReadsPerMin || rl.limits[KindWrite] != want.WritesPerMin || rl.limits[KindAuth] != want.AuthPerMin {
		t.Errorf("limits = %v, want defaults %+v", rl.limits, want)
	}
	if rl.maxKeys != want.MaxKeys {
		t.Errorf("maxKeys = %d, want %d", rl.maxKeys, want.MaxKeys)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{WritesPerMin: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindWrite, "shared") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
