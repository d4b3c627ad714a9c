package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	KindRead  = "read"
	KindWrite = "write"
	KindAuth  = "auth"
)

// RateLimitConfig holds per-minute limits. Every limit applies to one key
// (an owner id, or the remote address for auth attempts).
type RateLimitConfig struct {
	ReadsPerMin  int `yaml:"reads_per_min"`
	WritesPerMin int `yaml:"writes_per_min"`
	AuthPerMin   int `yaml:"auth_per_min"`

	// MaxKeys bounds the number of tracked keys. Idle keys are evicted first.
	MaxKeys int `yaml:"max_keys"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		ReadsPerMin:  120,
		WritesPerMin: 60,
		AuthPerMin:   30,
		MaxKeys:      10000,
	}
}

// RateLimiter implements keyed sliding window rate limiting.
// Each (kind, key) bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	window  time.Duration
	maxKeys int
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	kind string
	key  string
}

type bucket struct {
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.ReadsPerMin <= 0 {
		cfg.ReadsPerMin = defaults.ReadsPerMin
	}
	if cfg.WritesPerMin <= 0 {
		cfg.WritesPerMin = defaults.WritesPerMin
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaults.MaxKeys
	}

	return &RateLimiter{
		limits: map[string]int{
			KindRead:  cfg.ReadsPerMin,
			KindWrite: cfg.WritesPerMin,
			KindAuth:  cfg.AuthPerMin,
		},
		window:  time.Minute,
		maxKeys: cfg.MaxKeys,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow checks whether one event of kind is allowed for key.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
// Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	bk := bucketKey{kind: kind, key: key}
	b, ok := rl.buckets[bk]
	if !ok {
		if len(rl.buckets) >= rl.maxKeys {
			rl.sweep(now)
		}
		b = &bucket{}
		rl.buckets[bk] = b
	}
	b.evict(now.Add(-rl.window))

	if len(b.events) >= limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// Len returns the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// sweep drops buckets with no events inside the window. If none are idle
// the oldest bucket is dropped so the map stays bounded.
func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-rl.window)
	var (
		oldestKey bucketKey
		oldest    time.Time
		found     bool
	)
	for k, b := range rl.buckets {
		b.evict(cutoff)
		if len(b.events) == 0 {
			delete(rl.buckets, k)
			continue
		}
		last := b.events[len(b.events)-1]
		if !found || last.Before(oldest) {
			oldestKey, oldest, found = k, last, true
		}
	}
	if len(rl.buckets) >= rl.maxKeys && found {
		delete(rl.buckets, oldestKey)
	}
}

// evict removes events before cutoff.
func (b *bucket) evict(cutoff time.Time) {
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
