package memory

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is returned by Put for malformed records.
var ErrInvalidRecord = errors.New("memory: invalid record")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of r against the store
// dimensionality dim.
func (r Record) Validate(dim int) error {
	switch {
	case r.ID == "":
		return invalid("id is required")
	case r.OwnerID == "":
		return invalid("owner_id is required")
	case r.ScopeID == "":
		return invalid("scope_id is required")
	case !r.Kind.Valid():
		return invalid("unknown kind %q", r.Kind)
	case r.TextPrimary == "":
		return invalid("text_primary is required")
	case r.CreatedAt.IsZero():
		return invalid("created_at is required")
	}

	if _, ok := r.Vector(ChannelContent); !ok {
		return invalid("content vector is required")
	}
	for ch, v := range r.Vectors {
		if !ch.Valid() {
			return invalid("unknown channel %q", ch)
		}
		if len(v) != dim {
			return invalid("%s vector has %d dimensions, want %d", ch, len(v), dim)
		}
	}

	if r.Kind == KindConversation && r.TextSecondary == "" {
		return invalid("conversation record %s has no reply text", r.ID)
	}
	if r.Kind.Private() {
		if !r.Visibility.Level.Valid() {
			return invalid("unknown visibility %q", r.Visibility.Level)
		}
		if r.Visibility.Level == PrivateChannel && r.Visibility.ChannelID == "" {
			return invalid("private_channel visibility requires a channel id")
		}
	}
	return nil
}
