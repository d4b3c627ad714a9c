package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/mnemo/internal/memory"
)

// ErrCompactionFailed indicates that compaction could not produce a summary.
var ErrCompactionFailed = errors.New("ctxengine: compaction failed")

// Summarizer produces a condensed summary of older dialogue turns.
type Summarizer interface {
	Summarize(ctx context.Context, turns []memory.Turn) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, turns []memory.Turn) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, turns []memory.Turn) (string, error) {
	return f(ctx, turns)
}

// ExtractiveSummarizer lists the opening of each older user turn.
type ExtractiveSummarizer struct {
	// MaxTurns caps the number of listed turns, newest kept. Zero means 5.
	MaxTurns int
	// MaxChars caps each listed line. Zero means 80.
	MaxChars int
}

// Summarize implements Summarizer.
func (s ExtractiveSummarizer) Summarize(_ context.Context, turns []memory.Turn) (string, error) {
	maxTurns, maxChars := s.MaxTurns, s.MaxChars
	if maxTurns <= 0 {
		maxTurns = 5
	}
	if maxChars <= 0 {
		maxChars = 80
	}

	var lines []string
	for i := len(turns) - 1; i >= 0 && len(lines) < maxTurns; i-- {
		if turns[i].Role != memory.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(turns[i].Text), " ")
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxChars {
			text = string([]rune(text)[:maxChars]) + "..."
		}
		lines = append(lines, "- "+text)
	}
	if len(lines) == 0 {
		return "", nil
	}
	// Oldest first.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return "Earlier the user said:\n" + strings.Join(lines, "\n"), nil
}

// DialogueCompactor renders the recent-dialogue window, summarizing older
// turns when the window is long.
type DialogueCompactor struct {
	summarizer Summarizer
	config     Config
}

// NewDialogueCompactor creates a DialogueCompactor. A nil summarizer
// disables summary generation; compaction still drops old turns.
func NewDialogueCompactor(summarizer Summarizer, cfg Config) *DialogueCompactor {
	return &DialogueCompactor{summarizer: summarizer, config: cfg.withDefaults()}
}

// ShouldCompact reports whether turns exceed the compaction threshold.
func (c *DialogueCompactor) ShouldCompact(turns []memory.Turn) bool {
	return len(turns) > c.config.CompactionThreshold
}

// Compact summarizes old turns and keeps the RetainRecent newest. The
// returned summary is empty when nothing was summarized.
func (c *DialogueCompactor) Compact(ctx context.Context, turns []memory.Turn) (string, []memory.Turn, error) {
	retain := c.config.RetainRecent
	if len(turns) <= retain {
		return "", turns, nil
	}

	old := turns[:len(turns)-retain]
	recent := make([]memory.Turn, retain)
	copy(recent, turns[len(turns)-retain:])

	if c.summarizer == nil {
		return "", recent, nil
	}
	summary, err := c.summarizer.Summarize(ctx, old)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}
	return summary, recent, nil
}

// Render formats turns as a dialogue transcript, compacting first when the
// window exceeds the threshold. A failing summarizer degrades to dropping
// the old turns.
func (c *DialogueCompactor) Render(ctx context.Context, turns []memory.Turn) (string, error) {
	if !c.ShouldCompact(turns) {
		return FormatDialogue("", turns), nil
	}
	summary, recent, err := c.Compact(ctx, turns)
	if err != nil {
		recent = turns[len(turns)-c.config.RetainRecent:]
		return FormatDialogue("", recent), err
	}
	return FormatDialogue(summary, recent), nil
}

// FormatDialogue renders an optional summary followed by one line per turn.
func FormatDialogue(summary string, turns []memory.Turn) string {
	var b strings.Builder
	if summary != "" {
		b.WriteString("[Conversation Summary]\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Text))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
