package ctxengine

import "strings"

// Component is one named piece of assembled context.
type Component struct {
	Name string `json:"name"`
	// Priority orders components; lower is more important.
	Priority int    `json:"priority"`
	Text     string `json:"text"`
	// Required components are never dropped, only truncated.
	Required bool `json:"required"`
	// EstimatedTokens is the component's size. Zero means the assembler's
	// estimator computes it.
	EstimatedTokens int `json:"estimated_tokens"`
	// Truncated is set on output components that were elided.
	Truncated bool `json:"truncated,omitempty"`
}

// Metrics describes the outcome of one assembly.
type Metrics struct {
	Budget             int      `json:"budget"`
	TotalTokens        int      `json:"total_tokens"`
	ComponentsIncluded int      `json:"components_included"`
	ComponentsDropped  int      `json:"components_dropped"`
	Truncated          bool     `json:"truncated"`
	OverBudget         bool     `json:"over_budget"`
	Dropped            []string `json:"dropped,omitempty"`
}

// Result is an assembled context: included components in priority order.
type Result struct {
	Components []Component `json:"components"`
	Metrics    Metrics     `json:"metrics"`
}

// Text joins the components' text in order, separated by blank lines.
// Empty components are skipped.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Components))
	for _, c := range r.Components {
		if c.Text == "" {
			continue
		}
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Component returns the included component with the given name.
func (r Result) Component(name string) (Component, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}
