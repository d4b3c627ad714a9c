// Package affect scores the emotional charge of a piece of text.
//
// A Scorer is passed explicitly to every component that needs one; there is
// no package-level analyzer.
package affect

import (
	"context"
	"errors"
)

// Neutral is the label of a reading with no detected emotion.
const Neutral = "neutral"

// ErrScoring wraps scorer failures.
var ErrScoring = errors.New("affect: scoring failed")

// Reading is the result of scoring one text.
type Reading struct {
	Label      string  `json:"label"`
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence"`
}

// Scorer rates the affect of text. Implementations must be safe for
// concurrent use.
type Scorer interface {
	Score(ctx context.Context, text string) (Reading, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, text string) (Reading, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, text string) (Reading, error) {
	return f(ctx, text)
}
