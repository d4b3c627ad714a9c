package retrieval

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flemzord/mnemo/internal/affect"
	"github.com/flemzord/mnemo/internal/memory"
)

// Decision is the outcome of classifying one query.
type Decision struct {
	Strategy Strategy
	Reason   string
	Affect   affect.Reading
}

// Classifier picks a Strategy from the query text and the recent dialogue.
// It is safe for concurrent use.
type Classifier struct {
	cfg      ClassifierConfig
	recall   *regexp.Regexp
	temporal *regexp.Regexp
	thread   *regexp.Regexp
	scorer   affect.Scorer
	logger   *slog.Logger
}

// NewClassifier compiles the configured phrase lists. scorer may be nil, in
// which case the affective strategy is never chosen.
func NewClassifier(cfg ClassifierConfig, scorer affect.Scorer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Classifier{
		cfg:      cfg,
		recall:   compilePhrases(cfg.RecallPhrases),
		temporal: compilePhrases(cfg.TemporalPhrases),
		thread:   compilePhrases(cfg.ThreadPhrases),
		scorer:   scorer,
		logger:   logger.With("component", "retrieval.classifier"),
	}
}

// Classify never fails: anything that is not clearly skip, temporal or
// affective falls through to General.
func (c *Classifier) Classify(ctx context.Context, query string, window []memory.Turn) Decision {
	if !matches(c.recall, query) {
		return Decision{Strategy: SkipSemantic{}, Reason: "no recall intent"}
	}
	if matches(c.temporal, query) {
		return Decision{Strategy: Temporal{}, Reason: "time reference"}
	}

	reading := c.scoreAffect(ctx, query, window)
	if c.scorer != nil && reading.Intensity >= c.cfg.AffectThreshold {
		return Decision{Strategy: Affective{}, Reason: "affect " + reading.Label, Affect: reading}
	}

	if matches(c.thread, query) {
		return Decision{
			Strategy: General{Channels: []memory.Channel{memory.ChannelContent, memory.ChannelContext}},
			Reason:   "thread reference",
			Affect:   reading,
		}
	}
	return Decision{
		Strategy: General{Channels: []memory.Channel{memory.ChannelContent}},
		Reason:   "default",
		Affect:   reading,
	}
}

// scoreAffect rates the query, or the last user turn when the query is too
// short to carry emotion on its own. Scorer errors count as no affect.
func (c *Classifier) scoreAffect(ctx context.Context, query string, window []memory.Turn) affect.Reading {
	if c.scorer == nil {
		return affect.Reading{Label: affect.Neutral}
	}

	text := query
	if len(strings.Fields(query)) < c.cfg.ShortQueryWords {
		if turn, ok := memory.LastUserTurn(window); ok {
			text = turn.Text
		}
	}

	r, err := c.scorer.Score(ctx, text)
	if err != nil {
		c.logger.Warn("affect scoring failed, treating as neutral", "error", err)
		return affect.Reading{Label: affect.Neutral}
	}
	return r
}

// compilePhrases builds one case-insensitive, word-bounded alternation.
// Internal whitespace in a phrase matches any run of spaces.
func compilePhrases(phrases []string) *regexp.Regexp {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(strings.ToLower(p))
		if len(words) == 0 {
			continue
		}
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && re.MatchString(s)
}
