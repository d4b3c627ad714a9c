// Package security provides credential management, log redaction, keyed
// rate limiting, audit logging and request body validation for the service
// surfaces.
package security

import (
	"maps"
	"os"
	"slices"
	"sync"
)

// CredentialStore holds the secrets mnemo knows about at runtime: API
// keys from the environment and those modules register while
// provisioning. Every change is reported to the subscribers, which is how
// the log redactor stays current.
type CredentialStore struct {
	mu     sync.RWMutex
	creds  map[string]string
	notify []func(values []string)

	// deliver orders notifications like the updates that caused them.
	deliver sync.Mutex
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Subscribe calls fn with the current values now and after every change.
// fn must not modify the store.
func (s *CredentialStore) Subscribe(fn func(values []string)) {
	s.mu.Lock()
	s.notify = append(s.notify, fn)
	values := s.valuesLocked()
	s.deliver.Lock()
	s.mu.Unlock()
	defer s.deliver.Unlock()
	fn(values)
}

// Set stores or replaces a credential. An empty value removes it.
func (s *CredentialStore) Set(name, value string) {
	s.update(func() bool {
		old, had := s.creds[name]
		if value == "" {
			delete(s.creds, name)
			return had
		}
		s.creds[name] = value
		return !had || old != value
	})
}

// Delete removes a credential.
func (s *CredentialStore) Delete(name string) {
	s.Set(name, "")
}

// Get returns the named credential.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the credential names, sorted. Values are never listed
// except to subscribers.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.creds))
}

// LoadEnv copies the named, non-empty environment variables into the
// store and returns how many were found.
func (s *CredentialStore) LoadEnv(names ...string) int {
	found := make(map[string]string)
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			found[name] = v
		}
	}
	s.update(func() bool {
		maps.Copy(s.creds, found)
		return len(found) > 0
	})
	return len(found)
}

// update applies change under the lock and notifies subscribers outside
// it when change reports a modification.
func (s *CredentialStore) update(change func() bool) {
	s.mu.Lock()
	if !change() {
		s.mu.Unlock()
		return
	}
	values := s.valuesLocked()
	subs := slices.Clone(s.notify)
	s.deliver.Lock()
	s.mu.Unlock()
	defer s.deliver.Unlock()

	for _, fn := range subs {
		fn(values)
	}
}

func (s *CredentialStore) valuesLocked() []string {
	return slices.Collect(maps.Values(s.creds))
}
