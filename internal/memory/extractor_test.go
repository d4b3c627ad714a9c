package memory

import (
	"context"
	"testing"
)

func TestPatternExtractor_Extract(t *testing.T) {
	t.Parallel()

	ex := Exchange{
		ScopeID:   "aria",
		OwnerID:   "u1",
		UserText:  "I really love hiking. My favorite color is green! What about you?",
		AgentText: "Nice.",
		Origin:    Visibility{Level: PrivateChannel, ChannelID: "room"},
	}
	got, err := PatternExtractor{}.Extract(context.Background(), ex)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Kind != KindPreference || got[0].Text != "user loves hiking" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Kind != KindFact || got[1].Text != "user's favorite color is green" {
		t.Errorf("got[1] = %+v", got[1])
	}
	for _, f := range got {
		if f.Visibility.Level != PrivateChannel || f.Visibility.ChannelID != "room" {
			t.Errorf("visibility not inherited: %+v", f.Visibility)
		}
	}
}

func TestPatternExtractor_DefaultsToPrivateDirect(t *testing.T) {
	t.Parallel()

	got, _ := PatternExtractor{}.Extract(context.Background(), Exchange{UserText: "i hate mondays"})
	if len(got) != 1 || got[0].Visibility.Level != PrivateDirect {
		t.Errorf("got %+v", got)
	}
}

func TestPatternExtractor_NothingToExtract(t *testing.T) {
	t.Parallel()

	got, err := PatternExtractor{}.Extract(context.Background(), Exchange{UserText: "how is the weather"})
	if err != nil || got != nil {
		t.Errorf("Extract = %v, %v; want nil, nil", got, err)
	}
	got, _ = NopExtractor{}.Extract(context.Background(), Exchange{UserText: "I love cats"})
	if got != nil {
		t.Errorf("NopExtractor returned %v", got)
	}
}

func TestTrimBullet(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"- item", "item"},
		{"* item", "item"},
		{"12. item", "item"},
		{"plain", "plain"},
		{"", ""},
		{"3.5 apples", "3.5 apples"},
	}
	for _, tt := range tests {
		if got := trimBullet(tt.in); got != tt.want {
			t.Errorf("trimBullet(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
