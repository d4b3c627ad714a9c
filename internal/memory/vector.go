package memory

import (
	"cmp"
	"math"
	"slices"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

// SortHits orders hits by descending score, then ascending id.
func SortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// RankByCosine scores every candidate's ch vector against query and returns
// the top k hits. Candidates without that channel are skipped. Backends that
// do brute-force search share this.
func RankByCosine(candidates []Record, ch Channel, query Vector, k int) []Hit {
	if k <= 0 {
		return nil
	}
	hits := make([]Hit, 0, len(candidates))
	for i := range candidates {
		v, ok := candidates[i].Vector(ch)
		if !ok {
			continue
		}
		hits = append(hits, Hit{ID: candidates[i].ID, Score: Cosine(query, v)})
	}
	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// SortRecent orders records newest first, ties by ascending id.
func SortRecent(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
