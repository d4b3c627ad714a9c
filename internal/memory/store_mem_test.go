package memory_test

import (
	"context"
	"testing"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/memory/memorytest"
)

// Compile-time interface guard.
var _ memory.Store = (*memory.InMemoryStore)(nil)

func TestInMemoryStore_Contract(t *testing.T) {
	memorytest.RunStoreSuite(t, func(_ *testing.T) memory.Store {
		return memory.NewInMemoryStore(memorytest.SuiteDim)
	})
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewInMemoryStore(memorytest.SuiteDim)
	rec := memorytest.Record("x", "s1", memory.KindFact, memory.Vector{1, 0, 0, 0})
	if err := s.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's record after Put must not reach the store.
	rec.Vectors[memory.ChannelContent][0] = 0

	got, err := s.Get(ctx, "s1", "x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Vectors[memory.ChannelContent][0] != 1 {
		t.Error("store shares vector memory with the caller")
	}

	got.TextPrimary = "changed"
	again, _ := s.Get(ctx, "s1", "x")
	if again.TextPrimary == "changed" {
		t.Error("Get returned a shared record")
	}
}

func TestInMemoryStore_Scopes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewInMemoryStore(memorytest.SuiteDim)
	for _, scope := range []string{"zeta", "alpha"} {
		if err := s.Put(ctx, memorytest.Record("id", scope, memory.KindFact, memory.Vector{1, 0, 0, 0})); err != nil {
			t.Fatal(err)
		}
	}
	scopes, err := s.Scopes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(scopes) != 2 || scopes[0] != "alpha" || scopes[1] != "zeta" {
		t.Errorf("Scopes = %v, want [alpha zeta]", scopes)
	}
}

func TestInMemoryStore_SearchRejectsBadQuery(t *testing.T) {
	t.Parallel()

	s := memory.NewInMemoryStore(memorytest.SuiteDim)
	if _, err := s.Search(context.Background(), "s1", memory.ChannelContent, memory.Vector{1}, 3, memory.Filter{}); err == nil {
		t.Error("expected error for mis-sized query")
	}
	if _, err := s.Search(context.Background(), "s1", "bogus", memory.Vector{1, 0, 0, 0}, 3, memory.Filter{}); err == nil {
		t.Error("expected error for unknown channel")
	}
}
