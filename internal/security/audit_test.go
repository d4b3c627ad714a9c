package security

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixedTime },
	})

	logger.Log(AuditEvent{
		Type:       EventAuthFailure,
		ScopeID:    "aria",
		RemoteAddr: "10.0.0.1:5000",
		Detail:     "invalid credentials",
	})

	var got AuditEvent
	if err := json.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("failed to decode JSONL: %v", err)
	}

	if got.Type != EventAuthFailure {
		t.Errorf("type = %q, want %q", got.Type, EventAuthFailure)
	}
	if got.ScopeID != "aria" {
		t.Errorf("scope_id = %q, want aria", got.ScopeID)
	}
	if !got.Timestamp.Equal(fixedTime) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, fixedTime)
	}
}

func TestAuditLogger_RedactsDetail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.AddLiteral("my-secret-key")

	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r})

	logger.Log(AuditEvent{
		Type:     EventAuthFailure,
		Detail:   "bearer my-secret-key rejected",
		Metadata: map[string]string{"header": "value is my-secret-key here"},
	})

	output := buf.String()
	if strings.Contains(output, "my-secret-key") {
		t.Errorf("secret found in audit output: %s", output)
	}
	if !strings.Contains(output, RedactPlaceholder) {
		t.Errorf("expected placeholder in audit output: %s", output)
	}
}

func TestAuditLogger_DoesNotMutateMetadata(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("hidden")
	logger := NewAuditLogger(AuditLoggerConfig{Redactor: r, OnEvent: func(AuditEvent) {}})

	meta := map[string]string{"k": "hidden"}
	logger.Log(AuditEvent{Type: EventRateLimit, Metadata: meta})

	if meta["k"] != "hidden" {
		t.Errorf("caller metadata mutated: %v", meta)
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventAuthSuccess})
}

func TestAuditLogger_Concurrent(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []AuditEvent
	)
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(e AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventRateLimit, OwnerID: "o"})
		}()
	}
	wg.Wait()

	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}
