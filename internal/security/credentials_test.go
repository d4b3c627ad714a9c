package security

import (
	"slices"
	"strings"
	"sync"
	"testing"
)

func TestCredentialStore_SetGetDelete(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	store.Set("embedder.openai.api_key", "sk-test123")
	store.Set("MNEMO_API_TOKEN", "tok-1")

	if v, ok := store.Get("embedder.openai.api_key"); !ok || v != "sk-test123" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("missing credential reported present")
	}
	if got := strings.Join(store.Names(), ","); got != "MNEMO_API_TOKEN,embedder.openai.api_key" {
		t.Errorf("Names() = %s", got)
	}

	store.Set("MNEMO_API_TOKEN", "")
	if _, ok := store.Get("MNEMO_API_TOKEN"); ok {
		t.Error("empty Set should remove the credential")
	}
	store.Delete("embedder.openai.api_key")
	if len(store.Names()) != 0 {
		t.Errorf("Names() after delete = %v", store.Names())
	}
}

func TestCredentialStore_Subscribe(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	store.Set("a", "first-value")

	var calls [][]string
	store.Subscribe(func(values []string) {
		slices.Sort(values)
		calls = append(calls, values)
	})

	store.Set("b", "second-value")
	store.Set("b", "second-value") // unchanged, no notification
	store.Delete("missing")        // unchanged, no notification
	store.Delete("a")

	want := [][]string{
		{"first-value"},
		{"first-value", "second-value"},
		{"second-value"},
	}
	if len(calls) != len(want) {
		t.Fatalf("notifications = %v, want %v", calls, want)
	}
	for i := range want {
		if !slices.Equal(calls[i], want[i]) {
			t.Errorf("notification %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestCredentialStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	var mu sync.Mutex
	seen := 0
	store.Subscribe(func([]string) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			name := "key" + strings.Repeat("x", i%5)
			store.Set(name, "value")
			store.Get(name)
			store.Names()
		})
	}
	wg.Wait()

	if got := len(store.Names()); got != 5 {
		t.Errorf("names = %d, want 5", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen < 6 {
		t.Errorf("notifications = %d, want at least one per new key plus the initial call", seen)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MNEMO_TEST_KEY", "sk-from-env")
	t.Setenv("MNEMO_TEST_EMPTY", "")

	store := NewCredentialStore()
	notified := 0
	store.Subscribe(func([]string) { notified++ })

	n := store.LoadEnv("MNEMO_TEST_KEY", "MNEMO_TEST_EMPTY", "MNEMO_TEST_UNSET")
	if n != 1 {
		t.Errorf("LoadEnv() = %d, want 1", n)
	}
	if v, ok := store.Get("MNEMO_TEST_KEY"); !ok || v != "sk-from-env" {
		t.Errorf("Get = %q, %v", v, ok)
	}
	if names := store.Names(); len(names) != 1 {
		t.Errorf("empty or unset variables stored: %v", names)
	}
	if notified != 2 {
		t.Errorf("notified = %d, want the initial call plus one batch", notified)
	}
}
