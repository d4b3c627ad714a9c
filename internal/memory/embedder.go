package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"
)

// ErrEmbedding wraps every failure of the embedding collaborator. It aborts
// the write or query that needed the vector.
var ErrEmbedding = errors.New("memory: embedding failed")

// Embedder turns text into a vector for one channel.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string, ch Channel) (Vector, error)
	Dimensions() int
}

// HashEmbedder is a deterministic bag-of-words embedder based on feature
// hashing. Texts that share no tokens have cosine similarity 0, which makes
// it useful in tests and offline setups.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dim.
// A non-positive dim falls back to 1024.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 1024
	}
	return &HashEmbedder{dim: dim}
}

// Compile-time interface check.
var _ Embedder = (*HashEmbedder)(nil)

// Embed hashes each token of text into a bucket, salted by channel so that
// channels occupy distinct spaces.
func (e *HashEmbedder) Embed(ctx context.Context, text string, ch Channel) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrEmbedding, err)
	}

	vec := make(Vector, e.dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(ch))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(tok))
		vec[h.Sum64()%uint64(e.dim)]++
	}
	return Normalize(vec), nil
}

// Dimensions returns the vector length.
func (e *HashEmbedder) Dimensions() int { return e.dim }

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "did": {},
	"do": {}, "for": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {},
	"my": {}, "of": {}, "on": {}, "or": {}, "so": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "we": {}, "what": {}, "you": {},
}

// Tokenize lowercases text and splits it into letter/digit runs, dropping
// common stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}
