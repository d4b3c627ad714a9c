package security

import (
	"errors"
	"strings"
	"testing"
)

func nested(open, close string, n int) string {
	return strings.Repeat(open, n) + "1" + strings.Repeat(close, n)
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	fact := `{"owner_id":"u1","kind":"preference","text":"user prefers tea","visibility":{"level":"public_channel","channel_id":"lobby"}}`

	tests := []struct {
		name     string
		body     string
		maxSize  int
		maxDepth int
		wantErr  error
	}{
		{name: "fact", body: fact},
		{name: "empty body", body: ""},
		{name: "exactly at size limit", body: `{"q":"` + strings.Repeat("x", 10) + `"}`, maxSize: 18},
		{name: "one byte over", body: `{"q":"` + strings.Repeat("x", 11) + `"}`, maxSize: 18, wantErr: ErrBodyTooLarge},
		{name: "depth at limit", body: nested("[", "]", 3), maxDepth: 3},
		{name: "depth over limit", body: nested(`{"a":`, "}", 4), maxDepth: 3, wantErr: ErrJSONTooDeep},
		{name: "default depth", body: nested("[", "]", 40), wantErr: ErrJSONTooDeep},
		{name: "scalar", body: `"hello"`, maxDepth: 1},
		{name: "missing colon", body: `{"owner_id" "u1"}`, wantErr: ErrInvalidJSON},
		{name: "unbalanced close", body: `{"a":1}}`, wantErr: ErrInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := ReadBody(strings.NewReader(tt.body), tt.maxSize, tt.maxDepth)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadBody() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && string(data) != tt.body {
				t.Errorf("data = %q, want %q", data, tt.body)
			}
		})
	}
}

func BenchmarkReadBody(b *testing.B) {
	body := `{"owner_id":"u1","context":"direct","query":"what did I say about the estate","channels":["content","context"]}`
	b.ResetTimer()
	for range b.N {
		_, _ = ReadBody(strings.NewReader(body), 0, 0)
	}
}
