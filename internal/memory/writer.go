package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/affect"
)

// Exchange is one human turn and the agent's reply, recorded as a single
// conversation record.
type Exchange struct {
	ScopeID   string     `json:"scope_id"`
	OwnerID   string     `json:"owner_id"`
	UserText  string     `json:"user_text"`
	AgentText string     `json:"agent_text"`
	Origin    Visibility `json:"origin"`
	At        time.Time  `json:"at,omitempty"`
}

// FactInput describes a fact or preference to remember.
type FactInput struct {
	ScopeID    string     `json:"scope_id"`
	OwnerID    string     `json:"owner_id"`
	Kind       Kind       `json:"kind"`
	Text       string     `json:"text"`
	Detail     string     `json:"detail,omitempty"`
	Visibility Visibility `json:"visibility"`
	At         time.Time  `json:"at,omitempty"`
}

// WriterConfig selects the optional channels embedded at write time.
type WriterConfig struct {
	// Channels lists the optional channels (affect, context) to embed in
	// addition to content. Nil means all optional channels.
	Channels []Channel `yaml:"channels"`
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.Channels == nil {
		c.Channels = []Channel{ChannelAffect, ChannelContext}
	}
	return c
}

// Writer embeds and stores new records. Embedding failures abort the write
// so no partially embedded record is ever stored.
type Writer struct {
	store    Store
	embedder Embedder
	scorer   affect.Scorer
	config   WriterConfig
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewWriter returns a Writer. scorer may be nil, in which case no affect
// signals are attached.
func NewWriter(store Store, embedder Embedder, scorer affect.Scorer, cfg WriterConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:    store,
		embedder: embedder,
		scorer:   scorer,
		config:   cfg.withDefaults(),
		logger:   logger.With("component", "memory.writer"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// RecordExchange stores one atomic conversation record for ex.
func (w *Writer) RecordExchange(ctx context.Context, ex Exchange) (Record, error) {
	if ex.UserText == "" || ex.AgentText == "" {
		return Record{}, invalid("exchange needs both user and agent text")
	}

	texts := map[Channel]string{
		ChannelContent: ex.UserText,
		ChannelAffect:  ex.UserText,
		ChannelContext: ex.UserText + "\n" + ex.AgentText,
	}
	vectors, err := w.embed(ctx, texts)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:            w.newID(),
		OwnerID:       ex.OwnerID,
		ScopeID:       ex.ScopeID,
		Kind:          KindConversation,
		TextPrimary:   ex.UserText,
		TextSecondary: ex.AgentText,
		Vectors:       vectors,
		Visibility:    ex.Origin,
		CreatedAt:     w.timestamp(ex.At),
		Signals:       w.signals(ctx, ex.UserText),
	}
	if err := w.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("storing exchange: %w", err)
	}

	w.logger.Debug("exchange recorded", "scope", rec.ScopeID, "id", rec.ID, "affect", rec.Signals.AffectLabel)
	return rec, nil
}

// RecordFact stores a fact or preference with its visibility.
func (w *Writer) RecordFact(ctx context.Context, in FactInput) (Record, error) {
	if in.Kind == "" {
		in.Kind = KindFact
	}
	if !in.Kind.Private() {
		return Record{}, invalid("kind %q is not a fact kind", in.Kind)
	}
	if in.Text == "" {
		return Record{}, invalid("fact text is required")
	}

	vectors, err := w.embed(ctx, map[Channel]string{
		ChannelContent: in.Text,
		ChannelAffect:  in.Text,
	})
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:            w.newID(),
		OwnerID:       in.OwnerID,
		ScopeID:       in.ScopeID,
		Kind:          in.Kind,
		TextPrimary:   in.Text,
		TextSecondary: in.Detail,
		Vectors:       vectors,
		Visibility:    in.Visibility,
		CreatedAt:     w.timestamp(in.At),
		Signals:       w.signals(ctx, in.Text),
	}
	if err := w.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("storing %s: %w", in.Kind, err)
	}

	w.logger.Debug("fact recorded", "scope", rec.ScopeID, "id", rec.ID, "visibility", string(rec.Visibility.Level))
	return rec, nil
}

// embed computes content plus every configured optional channel present in
// texts.
func (w *Writer) embed(ctx context.Context, texts map[Channel]string) (map[Channel]Vector, error) {
	vectors := make(map[Channel]Vector, len(texts))
	for _, ch := range Channels() {
		text, ok := texts[ch]
		if !ok {
			continue
		}
		if ch != ChannelContent && !slices.Contains(w.config.Channels, ch) {
			continue
		}
		v, err := w.embedder.Embed(ctx, text, ch)
		if err != nil {
			return nil, fmt.Errorf("%w: %s channel: %w", ErrEmbedding, ch, err)
		}
		vectors[ch] = v
	}
	return vectors, nil
}

// signals scores affect for text. Scoring is best-effort: a failure is
// logged and the record is stored without affect signals.
func (w *Writer) signals(ctx context.Context, text string) Signals {
	if w.scorer == nil {
		return Signals{}
	}
	r, err := w.scorer.Score(ctx, text)
	if err != nil {
		w.logger.Warn("affect scoring failed", "error", err)
		return Signals{}
	}
	return Signals{AffectLabel: r.Label, Intensity: r.Intensity, Confidence: r.Confidence}
}

func (w *Writer) timestamp(at time.Time) time.Time {
	if at.IsZero() {
		return w.now().UTC()
	}
	return at.UTC()
}
