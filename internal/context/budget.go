package ctxengine

import (
	"math"
	"unicode/utf8"

	"github.com/flemzord/mnemo/internal/memory"
)

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English; ~3 for French or other Latin languages.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0 (English approximation).
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for the given text.
func (e *CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	// Always round up to avoid underestimation.
	return int(float64(n)/e.CharsPerToken) + 1
}

// EstimatorFunc adapts a function to TokenEstimator.
type EstimatorFunc func(text string) int

// Estimate calls f.
func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// EstimateTurns returns the estimated tokens for rendered dialogue turns,
// including a small per-turn overhead for the role label.
func EstimateTurns(estimator TokenEstimator, turns []memory.Turn) int {
	total := 0
	for _, t := range turns {
		total += 2 + estimator.Estimate(t.Text)
	}
	return total
}

// scaleTokens shrinks a token estimate in proportion to a text's new length.
func scaleTokens(tokens, oldChars, newChars int) int {
	if oldChars == 0 || tokens == 0 {
		return 0
	}
	return int(math.Ceil(float64(tokens) * float64(newChars) / float64(oldChars)))
}
