package affect

import (
	"cmp"
	"context"
	"errors"
	"math"
	"strings"
	"unicode"
)

// Entry is one lexicon word.
type Entry struct {
	Label  string  `yaml:"label"`
	Weight float64 `yaml:"weight"`
}

// Lexicon is a word-list scorer. It is immutable after construction and
// therefore safe for concurrent use.
type Lexicon struct {
	entries      map[string]Entry
	intensifiers map[string]float64
	negators     map[string]struct{}
}

// Compile-time interface check.
var _ Scorer = (*Lexicon)(nil)

// NewLexicon builds a lexicon from entries. Weights are clamped to [0, 1].
// A nil map yields the built-in word list.
func NewLexicon(entries map[string]Entry) *Lexicon {
	if entries == nil {
		entries = defaultEntries()
	}
	l := &Lexicon{
		entries: make(map[string]Entry, len(entries)),
		intensifiers: map[string]float64{
			"very": 1.4, "so": 1.3, "really": 1.3, "extremely": 1.6,
			"incredibly": 1.5, "totally": 1.3, "absolutely": 1.5,
		},
		negators: map[string]struct{}{
			"not": {}, "never": {}, "no": {}, "dont": {}, "isnt": {}, "wasnt": {},
		},
	}
	for w, e := range entries {
		e.Weight = math.Max(0, math.Min(1, e.Weight))
		l.entries[strings.ToLower(w)] = e
	}
	return l
}

// Score returns the dominant label and an intensity in [0, 1]. Intensity
// grows with the strongest hit, additional hits, and exclamation marks.
func (l *Lexicon) Score(ctx context.Context, text string) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, errors.Join(ErrScoring, err)
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	totals := make(map[string]float64)
	var peak float64
	hits := 0
	for i, w := range words {
		w = strings.ReplaceAll(w, "'", "")
		e, ok := l.entries[w]
		if !ok {
			continue
		}
		weight := e.Weight
		if i > 0 {
			prev := strings.ReplaceAll(words[i-1], "'", "")
			if f, ok := l.intensifiers[prev]; ok {
				weight *= f
			}
			if _, ok := l.negators[prev]; ok {
				weight *= 0.5
			}
		}
		weight = math.Min(1, weight)
		totals[e.Label] += weight
		peak = math.Max(peak, weight)
		hits++
	}

	if hits == 0 {
		return Reading{Label: Neutral, Intensity: 0, Confidence: 0.5}, nil
	}

	label := ""
	best := -1.0
	for lbl, total := range totals {
		if total > best || (total == best && cmp.Less(lbl, label)) {
			label, best = lbl, total
		}
	}

	exclaim := math.Min(0.3, 0.1*float64(strings.Count(text, "!")))
	intensity := math.Min(1, peak+0.1*float64(hits-1)+exclaim)
	confidence := math.Min(1, 0.5+0.15*float64(hits))

	return Reading{Label: label, Intensity: round2(intensity), Confidence: round2(confidence)}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func defaultEntries() map[string]Entry {
	add := func(m map[string]Entry, label string, weight float64, words ...string) {
		for _, w := range words {
			m[w] = Entry{Label: label, Weight: weight}
		}
	}
	m := make(map[string]Entry)
	add(m, "joy", 0.5, "happy", "glad", "great", "nice", "fun", "enjoy", "enjoyed", "excited", "cheerful")
	add(m, "joy", 0.8, "thrilled", "ecstatic", "overjoyed", "amazing", "wonderful", "fantastic")
	add(m, "love", 0.6, "love", "loved", "adore", "cherish", "fond")
	add(m, "sadness", 0.5, "sad", "down", "lonely", "miss", "missed", "disappointed", "unhappy")
	add(m, "sadness", 0.85, "heartbroken", "devastated", "grief", "grieving", "miserable", "depressed", "crying", "cried")
	add(m, "anger", 0.5, "annoyed", "irritated", "upset", "mad", "frustrated")
	add(m, "anger", 0.85, "furious", "angry", "hate", "hated", "livid", "outraged")
	add(m, "fear", 0.5, "worried", "nervous", "anxious", "uneasy", "scared")
	add(m, "fear", 0.85, "terrified", "panicked", "panic", "horrified", "afraid")
	add(m, "surprise", 0.5, "surprised", "unexpected", "shocked", "astonished")
	return m
}
