package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/mnemo/internal/affect"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/retrieval"
)

func TestClassifier_Classify(t *testing.T) {
	t.Parallel()

	c := retrieval.NewClassifier(retrieval.ClassifierConfig{}, affect.NewLexicon(nil), quietLogger())

	tests := []struct {
		name     string
		query    string
		window   []memory.Turn
		want     string
		channels int
	}{
		{"casual", "hey, how are you today?", nil, "skip_semantic", 0},
		{"temporal", "Do you remember what I said yesterday?", nil, "temporal", 0},
		{"temporal phrase spacing", "what did I tell you   last week", nil, "temporal", 0},
		{"affective", "remember when I was devastated and heartbroken", nil, "affective", 2},
		{"thread", "remember our conversation about the trip", nil, "general", 2},
		{"general", "what did I say about sushi", nil, "general", 1},
		{"word boundary", "the remembrance service", nil, "skip_semantic", 0},
		{
			"short query borrows window affect",
			"remember that?",
			[]memory.Turn{
				{Role: memory.RoleUser, Text: "I am terrified of the exam"},
				{Role: memory.RoleAgent, Text: "You will do fine."},
			},
			"affective", 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := c.Classify(context.Background(), tt.query, tt.window)
			if d.Strategy.Name() != tt.want {
				t.Fatalf("strategy = %s (%s), want %s", d.Strategy.Name(), d.Reason, tt.want)
			}
			if got := len(retrieval.Channels(d.Strategy)); got != tt.channels {
				t.Errorf("channels = %d, want %d", got, tt.channels)
			}
		})
	}
}

func TestClassifier_ScorerFailureFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	failing := affect.ScorerFunc(func(context.Context, string) (affect.Reading, error) {
		return affect.Reading{}, errors.New("scorer offline")
	})
	c := retrieval.NewClassifier(retrieval.ClassifierConfig{}, failing, quietLogger())

	d := c.Classify(context.Background(), "remember how furious I was", nil)
	if _, ok := d.Strategy.(retrieval.General); !ok {
		t.Errorf("strategy = %T, want General", d.Strategy)
	}
}

func TestClassifier_NoScorer(t *testing.T) {
	t.Parallel()

	c := retrieval.NewClassifier(retrieval.ClassifierConfig{}, nil, quietLogger())
	d := c.Classify(context.Background(), "remember how furious I was", nil)
	if _, ok := d.Strategy.(retrieval.General); !ok {
		t.Errorf("strategy = %T, want General", d.Strategy)
	}
}

func TestClassifier_ConfigurableThresholdAndPhrases(t *testing.T) {
	t.Parallel()

	c := retrieval.NewClassifier(retrieval.ClassifierConfig{
		RecallPhrases:   []string{"flashback"},
		AffectThreshold: 0.95,
	}, affect.NewLexicon(nil), quietLogger())

	if d := c.Classify(context.Background(), "remember I was so sad", nil); d.Strategy.Name() != "skip_semantic" {
		t.Errorf("custom recall list ignored: %s", d.Strategy.Name())
	}
	if d := c.Classify(context.Background(), "flashback to when I was so sad", nil); d.Strategy.Name() != "general" {
		t.Errorf("strategy = %s, want general below raised threshold", d.Strategy.Name())
	}
}
