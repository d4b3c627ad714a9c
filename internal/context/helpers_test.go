package ctxengine_test

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	ctxengine "github.com/flemzord/mnemo/internal/context"
)

func newAssembler(t *testing.T, cfg ctxengine.Config) *ctxengine.Assembler {
	t.Helper()
	a, err := ctxengine.NewAssembler(cfg, ctxengine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return a
}

// digits returns n characters whose content identifies their position.
func digits(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(strconv.Itoa(i % 10))
	}
	return b.String()[:n]
}

func names(cs []ctxengine.Component) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
