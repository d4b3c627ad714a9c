package retrieval

import (
	"cmp"
	"slices"

	"github.com/flemzord/mnemo/internal/memory"
)

// ChannelResult is the ranked hit list of one channel search.
type ChannelResult struct {
	Channel memory.Channel
	Hits    []memory.Hit
}

// Fused is one entry of a fused ranking.
type Fused struct {
	ID    string
	Score float64
	// Ranks holds the 1-based rank of the record in each channel it
	// appeared in.
	Ranks map[memory.Channel]int
}

// Fuse combines channel rankings with reciprocal rank fusion: a record at
// rank r in a channel contributes 1/(k+r), and its fused score is the sum over
// channels. Raw similarity scores are ignored. Channels are visited in name
// order so the floating-point sums, and therefore the output, do not depend
// on the order of results. Ties are broken by ascending id.
func Fuse(results []ChannelResult, k int) []Fused {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b ChannelResult) int {
		return cmp.Compare(a.Channel, b.Channel)
	})

	byID := make(map[string]*Fused)
	for _, res := range ordered {
		seen := make(map[string]struct{}, len(res.Hits))
		rank := 0
		for _, hit := range res.Hits {
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}
			rank++

			f, ok := byID[hit.ID]
			if !ok {
				f = &Fused{ID: hit.ID, Ranks: make(map[memory.Channel]int)}
				byID[hit.ID] = f
			}
			if _, counted := f.Ranks[res.Channel]; counted {
				continue
			}
			f.Ranks[res.Channel] = rank
			f.Score += 1 / float64(k+rank)
		}
	}

	out := make([]Fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sortFused(out)
	return out
}

func sortFused(fs []Fused) {
	slices.SortFunc(fs, func(a, b Fused) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
