package memory_test

import (
	"context"
	"math"
	"testing"

	"github.com/flemzord/mnemo/internal/memory"
)

func TestHashEmbedder_Similarity(t *testing.T) {
	t.Parallel()

	e := memory.NewHashEmbedder(2048)
	ctx := context.Background()
	embed := func(text string) memory.Vector {
		v, err := e.Embed(ctx, text, memory.ChannelContent)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		return v
	}

	same := memory.Cosine(embed("I love sushi"), embed("I LOVE sushi!"))
	if math.Abs(same-1) > 1e-6 {
		t.Errorf("identical token bags cosine = %v, want 1", same)
	}
	overlap := memory.Cosine(embed("sushi"), embed("I love sushi"))
	if overlap < 0.5 {
		t.Errorf("overlapping cosine = %v, want >= 0.5", overlap)
	}
	if d := len(embed("x")); d != 2048 {
		t.Errorf("dimensions = %d", d)
	}
}

func TestHashEmbedder_ChannelsDiffer(t *testing.T) {
	t.Parallel()

	e := memory.NewHashEmbedder(2048)
	a, _ := e.Embed(context.Background(), "sushi", memory.ChannelContent)
	b, _ := e.Embed(context.Background(), "sushi", memory.ChannelAffect)
	if memory.Cosine(a, b) > 0.99 {
		t.Error("channels should hash into different buckets")
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := memory.Tokenize("What did I say about the Sushi, yesterday?")
	want := []string{"say", "about", "sushi", "yesterday"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b memory.Vector
		want float64
	}{
		{"identical", memory.Vector{1, 2}, memory.Vector{1, 2}, 1},
		{"orthogonal", memory.Vector{1, 0}, memory.Vector{0, 1}, 0},
		{"zero", memory.Vector{0, 0}, memory.Vector{1, 0}, 0},
		{"length mismatch", memory.Vector{1}, memory.Vector{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := memory.Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Cosine = %v, want %v", tt.name, got, tt.want)
		}
	}
}
