// Package reload applies configuration and persona changes to a running
// engine, triggered by file polling or SIGHUP.
package reload

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the configuration file to watch.
	ConfigPath string

	// PersonaDir, if set, is watched one level deep for identity and
	// guidance file changes.
	PersonaDir string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

// EventType says what changed.
type EventType string

const (
	EventConfigChanged  EventType = "config"
	EventPersonaChanged EventType = "persona"
)

// Event is one observed change.
type Event struct {
	Type EventType
	Path string
}

// stamp fingerprints a file or a directory's direct entries. count catches
// deletions that leave the newest mtime unchanged.
type stamp struct {
	mod   time.Time
	size  int64
	count int
}

type target struct {
	kind EventType
	path string
	stat func(string) (stamp, bool)
	last stamp
}

// Watcher polls the configured paths. It holds at most one undelivered
// event per kind, so a burst of writes becomes a single event.
type Watcher struct {
	interval time.Duration
	targets  []*target
	events   chan Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewWatcher creates a watcher. Nothing is polled until Start.
func NewWatcher(cfg WatcherConfig) *Watcher {
	w := &Watcher{interval: cfg.PollInterval}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if cfg.ConfigPath != "" {
		w.targets = append(w.targets, &target{kind: EventConfigChanged, path: cfg.ConfigPath, stat: statFile})
	}
	if cfg.PersonaDir != "" {
		w.targets = append(w.targets, &target{kind: EventPersonaChanged, path: cfg.PersonaDir, stat: statDir})
	}
	w.events = make(chan Event)
	return w
}

// Start takes the initial fingerprints and begins polling. Later calls are
// no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped != nil {
		return
	}
	for _, t := range w.targets {
		t.last, _ = t.stat(t.path)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.stopped = make(chan struct{})
	go w.poll(ctx, w.stopped)
}

// Events delivers change notifications.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the poller to exit. Safe to call more
// than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (w *Watcher) poll(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var pending []Event
	for {
		var out chan<- Event
		var next Event
		if len(pending) > 0 {
			out, next = w.events, pending[0]
		}
		select {
		case <-ctx.Done():
			return
		case out <- next:
			pending = pending[1:]
		case <-ticker.C:
			pending = w.check(pending)
		}
	}
}

// check appends an event for every changed target that has none pending.
func (w *Watcher) check(pending []Event) []Event {
	for _, t := range w.targets {
		cur, ok := t.stat(t.path)
		if !ok || cur == t.last {
			// A missing path is usually an editor mid-save; wait for it.
			continue
		}
		t.last = cur
		if !slices.ContainsFunc(pending, func(e Event) bool { return e.Type == t.kind }) {
			pending = append(pending, Event{Type: t.kind, Path: t.path})
		}
	}
	return pending
}

func statFile(path string) (stamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}, false
	}
	return stamp{mod: info.ModTime(), size: info.Size(), count: 1}, true
}

func statDir(dir string) (stamp, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stamp{}, false
	}
	var s stamp
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(s.mod) {
			s.mod = info.ModTime()
		}
		s.size += info.Size()
		s.count++
	}
	if info, err := os.Stat(filepath.Clean(dir)); err == nil && info.ModTime().After(s.mod) {
		s.mod = info.ModTime()
	}
	return s, true
}
