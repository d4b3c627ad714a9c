package ctxengine

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Elide keeps the first prefixRatio and last suffixRatio of text's
// characters and joins them with marker. Text too short to lose anything
// is returned unchanged.
func Elide(text string, prefixRatio, suffixRatio float64, marker string) string {
	runes := []rune(text)
	p, s := span(len(runes), prefixRatio, suffixRatio, 1)
	if p+s >= len(runes) {
		return text
	}
	out := join(runes, p, s, marker)
	if utf8.RuneCountInString(out) >= len(runes) {
		return text
	}
	return out
}

func span(n int, prefixRatio, suffixRatio, factor float64) (prefix, suffix int) {
	const eps = 1e-9
	prefix = int(math.Floor(float64(n)*prefixRatio*factor + eps))
	suffix = int(math.Floor(float64(n)*suffixRatio*factor + eps))
	return prefix, suffix
}

func join(runes []rune, prefix, suffix int, marker string) string {
	var b strings.Builder
	b.Grow(prefix + suffix + len(marker))
	b.WriteString(string(runes[:prefix]))
	b.WriteString(marker)
	b.WriteString(string(runes[len(runes)-suffix:]))
	return b.String()
}

// cut is a required component being truncated. Every round is computed from
// the original text so the output carries a single elision marker.
type cut struct {
	index      int
	original   []rune
	origTokens int
	level      int
	text       string
	tokens     int
	exhausted  bool
}

func newCut(index int, c Component) *cut {
	return &cut{
		index:      index,
		original:   []rune(c.Text),
		origTokens: c.EstimatedTokens,
		text:       c.Text,
		tokens:     c.EstimatedTokens,
	}
}

// shrink applies the next truncation round. It reports false, and leaves
// the component untouched, when no further round can reduce it.
func (c *cut) shrink(cfg Config) bool {
	if c.exhausted {
		return false
	}
	next := c.level + 1
	n := len(c.original)
	factor := math.Pow(cfg.PrefixRatio+cfg.SuffixRatio, float64(next-1))
	p, s := span(n, cfg.PrefixRatio, cfg.SuffixRatio, factor)

	text := join(c.original, p, s, cfg.ElisionMarker)
	size := utf8.RuneCountInString(text)
	if next > cfg.MaxTruncationRounds || p+s < cfg.MinKeptChars || size >= utf8.RuneCountInString(c.text) {
		c.exhausted = true
		return false
	}
	tokens := scaleTokens(c.origTokens, n, size)
	if tokens >= c.tokens {
		c.exhausted = true
		return false
	}

	c.level = next
	c.text = text
	c.tokens = tokens
	return true
}
