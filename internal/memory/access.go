package memory

import "slices"

// ContextKind describes the conversational surface a query originates from.
type ContextKind string

// Query contexts.
const (
	ContextDirect         ContextKind = "direct"
	ContextPrivateChannel ContextKind = "private_channel"
	ContextPublicChannel  ContextKind = "public_channel"
)

// Valid reports whether k is a known context kind.
func (k ContextKind) Valid() bool {
	switch k {
	case ContextDirect, ContextPrivateChannel, ContextPublicChannel:
		return true
	}
	return false
}

// QueryContext identifies who is asking and from where.
type QueryContext struct {
	OwnerID   string      `json:"owner_id"`
	Kind      ContextKind `json:"kind"`
	ChannelID string      `json:"channel_id,omitempty"`
}

// CanSee applies the hybrid privacy model. Records of another owner are never
// visible. Conversation pairs are visible from every context. Facts and
// preferences stay inside the visibility they were created with:
//
//   - private_direct only in a direct context
//   - private_channel only in the same private channel
//   - public_channel from any context
func (q QueryContext) CanSee(r Record) bool {
	if q.OwnerID != "" && r.OwnerID != q.OwnerID {
		return false
	}
	if !r.Kind.Private() {
		return true
	}
	switch r.Visibility.Level {
	case PrivateDirect:
		return q.Kind == ContextDirect
	case PrivateChannel:
		return q.Kind == ContextPrivateChannel && q.ChannelID != "" && q.ChannelID == r.Visibility.ChannelID
	case PublicChannel:
		return true
	}
	return false
}

// Filter restricts which records a Search or Recent call may return.
// The zero Filter matches everything in the scope.
type Filter struct {
	// OwnerID restricts results to one owner.
	OwnerID string
	// Kinds restricts results to the listed kinds.
	Kinds []Kind
	// OriginChannel restricts results to records created in that channel.
	OriginChannel string
	// Access applies visibility rules for the given query context.
	Access *QueryContext
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, r.Kind) {
		return false
	}
	if f.OriginChannel != "" && r.Visibility.ChannelID != f.OriginChannel {
		return false
	}
	if f.Access != nil && !f.Access.CanSee(r) {
		return false
	}
	return true
}

// ForContext builds the filter used for retrieval on behalf of qc.
func ForContext(qc QueryContext) Filter {
	return Filter{OwnerID: qc.OwnerID, Access: &qc}
}
