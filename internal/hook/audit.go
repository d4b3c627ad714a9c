package hook

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"
)

// AuditRecord is one JSON Lines entry written by AuditHook.
type AuditRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	ScopeID    string    `json:"scope_id"`
	OwnerID    string    `json:"owner_id"`
	Visibility string    `json:"visibility"`
	ChannelID  string    `json:"channel_id,omitempty"`
	RecordIDs  []string  `json:"record_ids"`
	Kinds      []string  `json:"kinds"`
}

// AuditHook writes a JSON Lines entry for every stored exchange. Texts are
// never written, only ids and kinds.
// It runs at AfterObserve with the lowest priority (runs last).
type AuditHook struct {
	writer io.Writer
	mu     sync.Mutex
	now    func() time.Time
}

// NewAuditHook creates an audit hook that writes JSON Lines to w.
func NewAuditHook(w io.Writer) *AuditHook {
	return &AuditHook{
		writer: w,
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ Hook = (*AuditHook)(nil)

// Position returns AfterObserve.
func (a *AuditHook) Position() Position { return AfterObserve }

// Priority returns math.MaxInt so the audit hook runs last.
func (a *AuditHook) Priority() int { return math.MaxInt }

// Execute writes one JSON Lines record for the observed exchange.
func (a *AuditHook) Execute(_ context.Context, hctx *Context) (Action, error) {
	record := AuditRecord{
		Timestamp: a.now().UTC(),
		ScopeID:   hctx.ScopeID,
		OwnerID:   hctx.Access.OwnerID,
		RecordIDs: make([]string, 0, len(hctx.Records)),
		Kinds:     make([]string, 0, len(hctx.Records)),
	}
	if hctx.Exchange != nil {
		record.Visibility = string(hctx.Exchange.Origin.Level)
		record.ChannelID = hctx.Exchange.Origin.ChannelID
	}
	for _, r := range hctx.Records {
		record.RecordIDs = append(record.RecordIDs, r.ID)
		record.Kinds = append(record.Kinds, string(r.Kind))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := json.NewEncoder(a.writer).Encode(record); err != nil {
		return ActionContinue, err
	}
	return ActionContinue, nil
}
