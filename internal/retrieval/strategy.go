// Package retrieval chooses a retrieval strategy for a query and executes it
// against a memory.Store, fusing multi-channel results with reciprocal rank
// fusion.
package retrieval

import (
	"fmt"
	"slices"

	"github.com/flemzord/mnemo/internal/memory"
)

// Strategy is a sealed set of retrieval plans. The concrete variants are
// SkipSemantic, Temporal, Affective and General.
type Strategy interface {
	Name() string
	strategy()
}

// SkipSemantic means the query has no recall intent: the caller relies on the
// recent-dialogue window only and no search is issued.
type SkipSemantic struct{}

// Temporal returns the most recent records without vector search.
type Temporal struct{}

// Affective fuses the content and affect channels.
type Affective struct{}

// General searches the content channel, plus context when the query refers to
// an earlier multi-turn exchange.
type General struct {
	Channels []memory.Channel
}

func (SkipSemantic) strategy() {}
func (Temporal) strategy()     {}
func (Affective) strategy()    {}
func (General) strategy()      {}

// Name implements Strategy.
func (SkipSemantic) Name() string { return "skip_semantic" }

// Name implements Strategy.
func (Temporal) Name() string { return "temporal" }

// Name implements Strategy.
func (Affective) Name() string { return "affective" }

// Name implements Strategy.
func (General) Name() string { return "general" }

// Channels returns the channels a strategy searches, sorted by name.
// SkipSemantic and Temporal search none.
func Channels(s Strategy) []memory.Channel {
	switch s := s.(type) {
	case Affective:
		return []memory.Channel{memory.ChannelContent, memory.ChannelAffect}
	case General:
		if len(s.Channels) == 0 {
			return []memory.Channel{memory.ChannelContent}
		}
		out := slices.Clone(s.Channels)
		slices.Sort(out)
		return slices.Compact(out)
	default:
		return nil
	}
}

// Info is the serializable description of a strategy.
type Info struct {
	Name     string           `json:"name"`
	Channels []memory.Channel `json:"channels,omitempty"`
}

// Describe returns the Info for s.
func Describe(s Strategy) Info {
	if s == nil {
		return Info{}
	}
	return Info{Name: s.Name(), Channels: Channels(s)}
}

// ParseStrategy builds a strategy from its name. channels is only used for
// general and defaults to content.
func ParseStrategy(name string, channels []memory.Channel) (Strategy, error) {
	switch name {
	case "skip_semantic":
		return SkipSemantic{}, nil
	case "temporal":
		return Temporal{}, nil
	case "affective":
		return Affective{}, nil
	case "general":
		for _, ch := range channels {
			if !ch.Valid() {
				return nil, fmt.Errorf("retrieval: unknown channel %q", ch)
			}
		}
		if len(channels) == 0 {
			channels = []memory.Channel{memory.ChannelContent}
		}
		return General{Channels: channels}, nil
	}
	return nil, fmt.Errorf("retrieval: unknown strategy %q", name)
}
