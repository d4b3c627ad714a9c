package pipeline

import (
	"strings"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/retrieval"
)

// splitMemories separates retrieved facts and preferences from
// conversation records, keeping ranked order.
func splitMemories(ms []retrieval.ScoredMemory) (facts, conversations []memory.Record) {
	for _, m := range ms {
		if m.Record.Kind.Private() {
			facts = append(facts, m.Record)
		} else {
			conversations = append(conversations, m.Record)
		}
	}
	return facts, conversations
}

// FormatFacts renders facts as a markdown list. It returns an empty string
// when there are none.
func FormatFacts(facts []memory.Record) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Known About The User\n")
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(oneLine(f.TextPrimary))
		if f.TextSecondary != "" {
			b.WriteString(" (")
			b.WriteString(oneLine(f.TextSecondary))
			b.WriteString(")")
		}
	}
	return b.String()
}

// FormatConversations renders recalled exchanges, each as a dated pair.
func FormatConversations(records []memory.Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Memory\n")
	for _, r := range records {
		b.WriteString("\n[")
		b.WriteString(r.CreatedAt.Format("2006-01-02"))
		b.WriteString("] user: ")
		b.WriteString(oneLine(r.TextPrimary))
		b.WriteString("\n  you: ")
		b.WriteString(oneLine(r.TextSecondary))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
