package memory

import (
	"context"
	"regexp"
	"strings"
)

// FactExtractor derives facts and preferences from a recorded exchange.
type FactExtractor interface {
	Extract(ctx context.Context, ex Exchange) ([]FactInput, error)
}

var (
	preferencePattern = regexp.MustCompile(`(?i)^i\s+(?:really\s+|truly\s+)?(love|like|prefer|enjoy|hate|dislike)\s+(.+)$`)
	factPattern       = regexp.MustCompile(`(?i)^my\s+([a-z ]{2,40}?)\s+(?:is|are)\s+(.+)$`)
	sentenceSplit     = regexp.MustCompile(`[.!?\n]+`)
)

// PatternExtractor recognizes first-person statements such as "I love X" or
// "my birthday is Y" in the user side of an exchange. Extracted records keep
// the visibility of the context the exchange happened in.
type PatternExtractor struct{}

// Compile-time interface checks.
var (
	_ FactExtractor = PatternExtractor{}
	_ FactExtractor = NopExtractor{}
)

// Extract returns one FactInput per recognized statement. Returns nil (not
// an error) if nothing worth remembering is found.
func (PatternExtractor) Extract(_ context.Context, ex Exchange) ([]FactInput, error) {
	vis := ex.Origin
	if !vis.Level.Valid() {
		vis.Level = PrivateDirect
	}

	var out []FactInput
	for _, sentence := range splitSentences(ex.UserText) {
		sentence = trimBullet(sentence)
		if m := preferencePattern.FindStringSubmatch(sentence); m != nil {
			out = append(out, FactInput{
				ScopeID:    ex.ScopeID,
				OwnerID:    ex.OwnerID,
				Kind:       KindPreference,
				Text:       "user " + preferenceVerb(m[1]) + " " + strings.TrimSpace(m[2]),
				Visibility: vis,
				At:         ex.At,
			})
			continue
		}
		if m := factPattern.FindStringSubmatch(sentence); m != nil {
			out = append(out, FactInput{
				ScopeID:    ex.ScopeID,
				OwnerID:    ex.OwnerID,
				Kind:       KindFact,
				Text:       "user's " + strings.ToLower(strings.TrimSpace(m[1])) + " is " + strings.TrimSpace(m[2]),
				Visibility: vis,
				At:         ex.At,
			})
		}
	}
	return out, nil
}

func preferenceVerb(v string) string {
	switch v = strings.ToLower(v); v {
	case "love", "like", "prefer", "enjoy", "hate", "dislike":
		return v + "s"
	}
	return v
}

// splitSentences splits text on sentence punctuation, trimming whitespace and
// filtering blanks.
func splitSentences(s string) []string {
	var out []string
	for _, part := range sentenceSplit.Split(s, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// trimBullet removes leading bullet markers ("- ", "* ", "1. ", etc.).
func trimBullet(s string) string {
	if len(s) == 0 {
		return s
	}
	if len(s) >= 2 && (s[0] == '-' || s[0] == '*') && s[1] == ' ' {
		return s[2:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && s[i] == '.' && i+1 < len(s) && s[i+1] == ' ' {
		return s[i+2:]
	}
	return s
}

// NopExtractor is a no-op extractor for when extraction is disabled.
type NopExtractor struct{}

// Extract always returns nil.
func (NopExtractor) Extract(_ context.Context, _ Exchange) ([]FactInput, error) {
	return nil, nil
}
