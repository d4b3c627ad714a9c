package security

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"unicode/utf8"
)

// MemoryTextKeys are attribute keys whose values hold remembered or queried
// text.
var MemoryTextKeys = []string{"text", "query", "text_primary", "text_secondary", "human_text", "agent_text"}

// RedactingHandler masks secrets in log records before they reach the
// wrapped handler. Values under a masked key are memory contents: they are
// replaced by their length and a short fingerprint, so one memory can be
// followed across log lines without its text being written.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	masked   map[string]bool
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner. maskKeys are matched at any group depth.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor, maskKeys ...string) *RedactingHandler {
	masked := make(map[string]bool, len(maskKeys))
	for _, k := range maskKeys {
		masked[k] = true
	}
	return &RedactingHandler{inner: inner, redactor: redactor, masked: masked}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.clean(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		cleaned[i] = h.clean(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(cleaned), redactor: h.redactor, masked: h.masked}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor, masked: h.masked}
}

// clean masks or redacts one attribute, descending into groups. LogValuers
// are resolved first so their output is cleaned too.
func (h *RedactingHandler) clean(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		if h.masked[a.Key] {
			a.Value = slog.StringValue(Fingerprint(a.Value.String()))
		} else {
			a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
		}
	case slog.KindGroup:
		group := a.Value.Group()
		cleaned := make([]slog.Attr, len(group))
		for i, ga := range group {
			cleaned[i] = h.clean(ga)
		}
		a.Value = slog.GroupValue(cleaned...)
	case slog.KindAny:
		// Errors and other values are logged through their string form.
		s := a.Value.String()
		if r := h.redactor.Redact(s); r != s {
			a.Value = slog.StringValue(r)
		}
	}
	return a
}

// Fingerprint describes text without revealing it: its length in
// characters and a 24-bit FNV-1a hash, as "[12 chars #a1b2c3]".
func Fingerprint(text string) string {
	f := fnv.New32a()
	_, _ = f.Write([]byte(text))
	return fmt.Sprintf("[%d chars #%06x]", utf8.RuneCountInString(text), f.Sum32()&0xffffff)
}
