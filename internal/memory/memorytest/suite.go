package memorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
)

// SuiteDim is the vector length used by RunStoreSuite.
const SuiteDim = 4

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Record builds a valid record in scope with the given content vector.
func Record(id, scope string, kind memory.Kind, content memory.Vector) memory.Record {
	rec := memory.Record{
		ID:          id,
		OwnerID:     "owner-1",
		ScopeID:     scope,
		Kind:        kind,
		TextPrimary: "text of " + id,
		Vectors:     map[memory.Channel]memory.Vector{memory.ChannelContent: content},
		Visibility:  memory.Visibility{Level: memory.PublicChannel, ChannelID: "general"},
		CreatedAt:   base,
	}
	if kind == memory.KindConversation {
		rec.TextSecondary = "reply to " + id
	}
	return rec
}

// RunStoreSuite exercises the Store contract against the backend built by
// newStore. newStore must return an empty store accepting SuiteDim vectors.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) memory.Store) {
	t.Helper()

	t.Run("PutRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		noContent := Record("a", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
		noContent.Vectors = nil

		shortVec := Record("b", "s1", memory.KindFact, memory.Vector{1, 0})

		halfPair := Record("c", "s1", memory.KindConversation, memory.Vector{1, 0, 0, 0})
		halfPair.TextSecondary = ""

		badAffect := Record("d", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
		badAffect.Vectors[memory.ChannelAffect] = memory.Vector{1}

		noVisibility := Record("e", "s1", memory.KindPreference, memory.Vector{1, 0, 0, 0})
		noVisibility.Visibility = memory.Visibility{}

		for _, rec := range []memory.Record{noContent, shortVec, halfPair, badAffect, noVisibility} {
			if err := s.Put(ctx, rec); !errors.Is(err, memory.ErrInvalidRecord) {
				t.Errorf("Put(%s) error = %v, want ErrInvalidRecord", rec.ID, err)
			}
		}
		if n, _ := s.Count(ctx, "s1"); n != 0 {
			t.Errorf("Count = %d after rejected puts, want 0", n)
		}
	})

	t.Run("PutRejectsDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := Record("dup", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("first Put: %v", err)
		}
		if err := s.Put(ctx, rec); !errors.Is(err, memory.ErrDuplicateRecord) {
			t.Errorf("second Put error = %v, want ErrDuplicateRecord", err)
		}
	})

	t.Run("SearchOrdersBySimilarity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustPut(t, s,
			Record("far", "s1", memory.KindFact, memory.Vector{0, 1, 0, 0}),
			Record("near", "s1", memory.KindFact, memory.Vector{1, 0.1, 0, 0}),
			Record("mid", "s1", memory.KindFact, memory.Vector{1, 1, 0, 0}),
		)

		hits, err := s.Search(ctx, "s1", memory.ChannelContent, memory.Vector{1, 0, 0, 0}, 2, memory.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("len(hits) = %d, want 2", len(hits))
		}
		if hits[0].ID != "near" || hits[1].ID != "mid" {
			t.Errorf("hits = %+v, want near then mid", hits)
		}
		if hits[0].Score < hits[1].Score {
			t.Errorf("scores not descending: %+v", hits)
		}
	})

	t.Run("SearchTiesById", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustPut(t, s,
			Record("b", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0}),
			Record("a", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0}),
		)
		hits, err := s.Search(ctx, "s1", memory.ChannelContent, memory.Vector{1, 0, 0, 0}, 5, memory.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "b" {
			t.Errorf("hits = %+v, want a then b", hits)
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustPut(t, s, Record("only-a", "scope-a", memory.KindConversation, memory.Vector{1, 0, 0, 0}))

		hits, err := s.Search(ctx, "scope-b", memory.ChannelContent, memory.Vector{1, 0, 0, 0}, 10, memory.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("cross-scope search returned %+v", hits)
		}
		if _, err := s.Get(ctx, "scope-b", "only-a"); !errors.Is(err, memory.ErrRecordNotFound) {
			t.Errorf("cross-scope Get error = %v, want ErrRecordNotFound", err)
		}
		recent, err := s.Recent(ctx, "scope-b", 10, memory.Filter{})
		if err != nil || len(recent) != 0 {
			t.Errorf("cross-scope Recent = %v, %v", recent, err)
		}
	})

	t.Run("FilterByAccess", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		secret := Record("secret", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
		secret.Visibility = memory.Visibility{Level: memory.PrivateDirect}
		pair := Record("pair", "s1", memory.KindConversation, memory.Vector{1, 0, 0, 0})
		pair.Visibility = memory.Visibility{Level: memory.PrivateDirect}
		other := Record("other-owner", "s1", memory.KindConversation, memory.Vector{1, 0, 0, 0})
		other.OwnerID = "owner-2"
		mustPut(t, s, secret, pair, other)

		public := memory.ForContext(memory.QueryContext{OwnerID: "owner-1", Kind: memory.ContextPublicChannel, ChannelID: "general"})
		hits, err := s.Search(ctx, "s1", memory.ChannelContent, memory.Vector{1, 0, 0, 0}, 10, public)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 || hits[0].ID != "pair" {
			t.Errorf("public hits = %+v, want only pair", hits)
		}

		direct := memory.ForContext(memory.QueryContext{OwnerID: "owner-1", Kind: memory.ContextDirect})
		hits, err = s.Search(ctx, "s1", memory.ChannelContent, memory.Vector{1, 0, 0, 0}, 10, direct)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 2 {
			t.Errorf("direct hits = %+v, want pair and secret", hits)
		}
	})

	t.Run("OptionalChannel", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		withAffect := Record("with", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
		withAffect.Vectors[memory.ChannelAffect] = memory.Vector{0, 0, 1, 0}
		mustPut(t, s, withAffect, Record("without", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0}))

		hits, err := s.Search(ctx, "s1", memory.ChannelAffect, memory.Vector{0, 0, 1, 0}, 10, memory.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 || hits[0].ID != "with" {
			t.Errorf("affect hits = %+v, want only with", hits)
		}
	})

	t.Run("GetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := Record("rt", "s1", memory.KindConversation, memory.Vector{0, 0, 0, 1})
		rec.Signals = memory.Signals{AffectLabel: "joy", Intensity: 0.7, Confidence: 0.8, Extra: map[string]string{"k": "v"}}
		rec.Visibility = memory.Visibility{Level: memory.PrivateChannel, ChannelID: "room"}
		mustPut(t, s, rec)

		got, err := s.Get(ctx, "s1", "rt")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.TextPrimary != rec.TextPrimary || got.TextSecondary != rec.TextSecondary {
			t.Errorf("texts = %q/%q", got.TextPrimary, got.TextSecondary)
		}
		if got.Kind != rec.Kind || got.OwnerID != rec.OwnerID || got.Visibility != rec.Visibility {
			t.Errorf("got %+v, want %+v", got, rec)
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
		}
		if got.Signals.AffectLabel != "joy" || got.Signals.Extra["k"] != "v" {
			t.Errorf("Signals = %+v", got.Signals)
		}
		if _, ok := got.Vector(memory.ChannelContent); !ok {
			t.Error("content vector missing after round trip")
		}
		if _, err := s.Get(ctx, "s1", "missing"); !errors.Is(err, memory.ErrRecordNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("RecentNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := range 5 {
			rec := Record(fmt.Sprintf("r%d", i), "s1", memory.KindConversation, memory.Vector{1, 0, 0, 0})
			rec.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			mustPut(t, s, rec)
		}

		recent, err := s.Recent(ctx, "s1", 3, memory.Filter{})
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		want := []string{"r4", "r3", "r2"}
		if len(recent) != len(want) {
			t.Fatalf("len(recent) = %d, want %d", len(recent), len(want))
		}
		for i, id := range want {
			if recent[i].ID != id {
				t.Errorf("recent[%d] = %s, want %s", i, recent[i].ID, id)
			}
		}
		if n, err := s.Count(ctx, "s1"); err != nil || n != 5 {
			t.Errorf("Count = %d, %v; want 5", n, err)
		}
	})

	t.Run("ConcurrentPutSearch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := Record(fmt.Sprintf("c%02d", i), "s1", memory.KindFact, memory.Vector{1, float32(i), 0, 0})
				if err := s.Put(ctx, rec); err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				hits, err := s.Search(ctx, "s1", memory.ChannelContent, memory.Vector{1, float32(i), 0, 0}, 1, memory.Filter{})
				if err != nil || len(hits) == 0 {
					t.Errorf("Search after Put = %v, %v", hits, err)
				}
			}()
		}
		wg.Wait()

		if n, _ := s.Count(ctx, "s1"); n != 16 {
			t.Errorf("Count = %d, want 16", n)
		}
	})
}

func mustPut(t *testing.T, s memory.Store, recs ...memory.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := s.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put(%s): %v", rec.ID, err)
		}
	}
}
