package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// minLiteralLen keeps short values, such as a one-letter password, from
// blanking unrelated log text.
const minLiteralLen = 6

// secretKeyPattern matches map keys that likely contain secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|pass|key|credential)`)

// redactRules is an immutable snapshot swapped on every change.
type redactRules struct {
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

// Redactor masks secrets in strings and decoded documents. It matches the
// default credential formats plus the literal values of a CredentialStore.
// Safe for concurrent use; readers never block. The zero value masks
// nothing until patterns or literals are added.
type Redactor struct {
	mu    sync.Mutex // serializes writers
	rules atomic.Pointer[redactRules]
}

// NewRedactor creates a Redactor with DefaultPatterns and no literals.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.rules.Store(&redactRules{patterns: DefaultPatterns()})
	return r
}

// AddPattern adds a pattern whose matches are masked.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.edit(func(cur *redactRules) ([]*regexp.Regexp, []string) {
		return append(slices.Clip(cur.patterns), pattern), cur.literals
	})
}

// AddLiteral masks every occurrence of secret. A followed credential store
// replaces the literal set on its next change.
func (r *Redactor) AddLiteral(secret string) {
	r.edit(func(cur *redactRules) ([]*regexp.Regexp, []string) {
		return cur.patterns, append(slices.Clip(cur.literals), secret)
	})
}

// Follow keeps the literal set equal to the values of store.
func (r *Redactor) Follow(store *CredentialStore) {
	store.Subscribe(func(values []string) {
		r.edit(func(cur *redactRules) ([]*regexp.Regexp, []string) {
			return cur.patterns, values
		})
	})
}

// edit installs the snapshot derived from the current one. Literals are
// matched longest first so a secret containing another is masked whole.
func (r *Redactor) edit(derive func(cur *redactRules) ([]*regexp.Regexp, []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.rules.Load()
	if cur == nil {
		cur = &redactRules{}
	}
	patterns, literals := derive(cur)

	lits := slices.DeleteFunc(slices.Clone(literals), func(s string) bool { return len(s) < minLiteralLen })
	slices.SortFunc(lits, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), strings.Compare(a, b))
	})
	lits = slices.Compact(lits)

	next := &redactRules{patterns: patterns, literals: lits}
	if len(lits) > 0 {
		pairs := make([]string, 0, 2*len(lits))
		for _, lit := range lits {
			pairs = append(pairs, lit, RedactPlaceholder)
		}
		next.replacer = strings.NewReplacer(pairs...)
	}
	r.rules.Store(next)
}

// Redact masks every known secret in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	rules := r.rules.Load()
	if rules == nil {
		return s
	}
	if rules.replacer != nil {
		s = rules.replacer.Replace(s)
	}
	for _, p := range rules.patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap masks, in place, the string values under secret-looking keys
// and any secret found in other strings. It descends into nested maps and
// lists, as produced by decoding YAML or JSON into map[string]any.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// DefaultPatterns returns compiled regex patterns for the credentials mnemo
// handles: embedding API keys, bearer and basic authorization values, and
// passwords embedded in URLs.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI: sk-... and sk-proj-... (at least 20 chars after prefix)
		regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_\-]{20,}`),
		// Authorization header values
		regexp.MustCompile(`(?i)\b(?:bearer|basic)\s+[a-z0-9._~+/\-]{12,}=*`),
		// user:password@ in URLs
		regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`),
	}
}
