package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/flemzord/mnemo/internal/memory"
)

// Compile-time interface guard.
var _ memory.HistoryStore = (*memory.InMemoryHistoryStore)(nil)

func turns(n int) []memory.Turn {
	out := make([]memory.Turn, n)
	for i := range out {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAgent
		}
		out[i] = memory.Turn{Role: role, Text: fmt.Sprintf("turn %d", i)}
	}
	return out
}

func TestInMemoryHistoryStore_Recent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewInMemoryHistoryStore()
	if err := s.Append(ctx, "aria/u1", turns(5)...); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		n     int
		want  int
		first string
	}{
		{0, 0, ""},
		{2, 2, "turn 3"},
		{10, 5, "turn 0"},
	}
	for _, tt := range tests {
		got, err := s.Recent(ctx, "aria/u1", tt.n)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("Recent(%d) len = %d, want %d", tt.n, len(got), tt.want)
			continue
		}
		if tt.want > 0 && got[0].Text != tt.first {
			t.Errorf("Recent(%d)[0] = %q, want %q", tt.n, got[0].Text, tt.first)
		}
	}

	if got, _ := s.Recent(ctx, "unknown", 3); got != nil {
		t.Errorf("Recent(unknown) = %v, want nil", got)
	}
}

func TestInMemoryHistoryStore_TrimAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewInMemoryHistoryStore()
	_ = s.Append(ctx, "a", turns(6)...)
	_ = s.Append(ctx, "b", turns(2)...)

	removed, err := s.Trim(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if n, _ := s.Len(ctx, "a"); n != 3 {
		t.Errorf("Len(a) = %d, want 3", n)
	}
	if n, _ := s.Len(ctx, "b"); n != 2 {
		t.Errorf("Len(b) = %d, want 2", n)
	}
	recent, _ := s.Recent(ctx, "a", 1)
	if recent[0].Text != "turn 5" {
		t.Errorf("newest turn lost by Trim: %q", recent[0].Text)
	}

	if err := s.Purge(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(ctx, "a"); n != 0 {
		t.Errorf("Len(a) after Purge = %d", n)
	}
}

func TestLastUserTurn(t *testing.T) {
	t.Parallel()

	got, ok := memory.LastUserTurn(turns(4))
	if !ok || got.Text != "turn 2" {
		t.Errorf("LastUserTurn = %+v, %v", got, ok)
	}
	if _, ok := memory.LastUserTurn(nil); ok {
		t.Error("expected no user turn in empty window")
	}
}
