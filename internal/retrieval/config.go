package retrieval

import (
	"errors"
	"fmt"
	"time"
)

// ClassifierConfig holds the tunable phrase lists and thresholds used to pick
// a strategy.
type ClassifierConfig struct {
	// RecallPhrases signal that the user asks to be reminded of something.
	RecallPhrases []string `yaml:"recall_phrases"`
	// TemporalPhrases are explicit time references.
	TemporalPhrases []string `yaml:"temporal_phrases"`
	// ThreadPhrases refer to an earlier multi-turn exchange.
	ThreadPhrases []string `yaml:"thread_phrases"`
	// AffectThreshold is the minimum intensity for the affective strategy.
	AffectThreshold float64 `yaml:"affect_threshold"`
	// ShortQueryWords is the word count under which the last user turn of
	// the dialogue window is scored for affect instead of the query.
	ShortQueryWords int `yaml:"short_query_words"`
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if c.RecallPhrases == nil {
		c.RecallPhrases = []string{
			"remember", "recall", "remind me", "you mentioned", "you said",
			"what did i say", "what did i tell you", "did i tell you", "did i mention",
			"we talked about", "we discussed", "our conversation about", "last time",
			"do you know what i",
		}
	}
	if c.TemporalPhrases == nil {
		c.TemporalPhrases = []string{
			"yesterday", "last night", "last week", "last month", "earlier today",
			"this morning", "the other day", "days ago", "weeks ago", "recently",
			"last time",
		}
	}
	if c.ThreadPhrases == nil {
		c.ThreadPhrases = []string{
			"our conversation about", "we talked about", "we discussed",
			"that chat about", "the discussion about",
		}
	}
	if c.AffectThreshold == 0 {
		c.AffectThreshold = 0.6
	}
	if c.ShortQueryWords == 0 {
		c.ShortQueryWords = 4
	}
	return c
}

// EngineConfig controls search fan-out, fusion and timeouts. It is read-only
// after the engine is built.
type EngineConfig struct {
	// K is the number of results per channel and in the fused list.
	K int `yaml:"k"`
	// RRFConstant is the reciprocal rank fusion damping constant.
	RRFConstant int `yaml:"rrf_constant"`
	// SimilarityFloor discards per-channel hits below this cosine score.
	SimilarityFloor *float64 `yaml:"similarity_floor"`
	// ChannelTimeout bounds each channel search.
	ChannelTimeout time.Duration `yaml:"channel_timeout"`
	// AggregateTimeout bounds the whole retrieval call.
	AggregateTimeout time.Duration `yaml:"aggregate_timeout"`
	// SignalBoost adds boost*intensity*confidence to affective results.
	SignalBoost float64 `yaml:"signal_boost"`
	// CacheSize is the number of hydrated records kept in memory.
	// Negative disables the cache.
	CacheSize int64 `yaml:"cache_size"`
}

// DefaultSimilarityFloor is the permissive per-channel cutoff.
const DefaultSimilarityFloor = 0.1

func (c EngineConfig) withDefaults() EngineConfig {
	if c.K <= 0 {
		c.K = 10
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = 60
	}
	if c.SimilarityFloor == nil {
		f := DefaultSimilarityFloor
		c.SimilarityFloor = &f
	}
	if c.ChannelTimeout <= 0 {
		c.ChannelTimeout = time.Second
	}
	if c.AggregateTimeout <= 0 {
		c.AggregateTimeout = 3 * time.Second
	}
	if c.CacheSize == 0 {
		c.CacheSize = 10_000
	}
	return c
}

// Validate reports configuration values that are out of range.
func (c EngineConfig) Validate() error {
	var errs []error
	if c.SimilarityFloor != nil && (*c.SimilarityFloor < -1 || *c.SimilarityFloor > 1) {
		errs = append(errs, fmt.Errorf("retrieval: similarity_floor %v out of [-1, 1]", *c.SimilarityFloor))
	}
	if c.SignalBoost < 0 {
		errs = append(errs, errors.New("retrieval: signal_boost must not be negative"))
	}
	if c.ChannelTimeout > 0 && c.AggregateTimeout > 0 && c.ChannelTimeout > c.AggregateTimeout {
		errs = append(errs, errors.New("retrieval: channel_timeout exceeds aggregate_timeout"))
	}
	return errors.Join(errs...)
}

// Validate reports configuration values that are out of range.
func (c ClassifierConfig) Validate() error {
	if c.AffectThreshold < 0 || c.AffectThreshold > 1 {
		return fmt.Errorf("retrieval: affect_threshold %v out of [0, 1]", c.AffectThreshold)
	}
	return nil
}
