// Package memory defines the multi-vector memory record, the scope-partitioned
// Store that persists it, and the write path that embeds new records.
package memory

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Kind classifies a memory record.
type Kind string

// Record kinds.
const (
	KindConversation Kind = "conversation"
	KindFact         Kind = "fact"
	KindPreference   Kind = "preference"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConversation, KindFact, KindPreference:
		return true
	}
	return false
}

// Private reports whether records of this kind are subject to visibility
// filtering. Conversation pairs are not.
func (k Kind) Private() bool {
	return k == KindFact || k == KindPreference
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("memory: unknown kind %q", s)
	}
	return k, nil
}

// Channel names an independently searchable embedding space.
type Channel string

// Embedding channels.
const (
	ChannelContent Channel = "content"
	ChannelAffect  Channel = "affect"
	ChannelContext Channel = "context"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelContent, ChannelAffect, ChannelContext:
		return true
	}
	return false
}

// Channels returns every known channel in canonical order.
func Channels() []Channel {
	return []Channel{ChannelContent, ChannelAffect, ChannelContext}
}

// Vector is a fixed-length embedding.
type Vector []float32

// VisibilityLevel is the privacy tag of a fact or preference.
type VisibilityLevel string

// Visibility levels.
const (
	PrivateDirect  VisibilityLevel = "private_direct"
	PrivateChannel VisibilityLevel = "private_channel"
	PublicChannel  VisibilityLevel = "public_channel"
)

// Valid reports whether v is a known level.
func (v VisibilityLevel) Valid() bool {
	switch v {
	case PrivateDirect, PrivateChannel, PublicChannel:
		return true
	}
	return false
}

// Visibility records where a record was created.
type Visibility struct {
	Level     VisibilityLevel `json:"level"`
	ChannelID string          `json:"channel_id,omitempty"`
}

// Signals carries ranking metadata that is never embedded.
type Signals struct {
	AffectLabel string            `json:"affect_label,omitempty"`
	Intensity   float64           `json:"intensity,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Record is the atomic unit of stored memory. A conversation record holds a
// whole exchange: the human turn in TextPrimary and the reply in TextSecondary.
type Record struct {
	ID            string             `json:"id"`
	OwnerID       string             `json:"owner_id"`
	ScopeID       string             `json:"scope_id"`
	Kind          Kind               `json:"kind"`
	TextPrimary   string             `json:"text_primary"`
	TextSecondary string             `json:"text_secondary,omitempty"`
	Vectors       map[Channel]Vector `json:"-"`
	Visibility    Visibility         `json:"visibility"`
	CreatedAt     time.Time          `json:"created_at"`
	Signals       Signals            `json:"signals"`
}

// Vector returns the embedding for ch, if present.
func (r Record) Vector(ch Channel) (Vector, bool) {
	v, ok := r.Vectors[ch]
	return v, ok && len(v) > 0
}

// Complete reports whether a conversation record carries both halves of its
// exchange. Non-conversation records are always complete.
func (r Record) Complete() bool {
	if r.Kind != KindConversation {
		return true
	}
	return r.TextPrimary != "" && r.TextSecondary != ""
}

// Clone returns a deep copy so callers can never mutate stored state.
func (r Record) Clone() Record {
	cp := r
	if r.Vectors != nil {
		cp.Vectors = make(map[Channel]Vector, len(r.Vectors))
		for ch, v := range r.Vectors {
			cp.Vectors[ch] = slices.Clone(v)
		}
	}
	cp.Signals.Extra = maps.Clone(r.Signals.Extra)
	return cp
}
