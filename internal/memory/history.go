package memory

import (
	"context"
	"time"
)

// Role identifies the author of a dialogue turn.
type Role string

// Turn authors.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one message of the recent-dialogue window.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SessionID derives the history key for an owner talking to a scope.
func SessionID(scopeID, ownerID string) string {
	return scopeID + "/" + ownerID
}

// HistoryStore keeps the short recent-dialogue window per session.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append adds turns to the session's history.
	Append(ctx context.Context, sessionID string, turns ...Turn) error

	// Recent returns the n most recent turns in chronological order.
	// If fewer than n turns exist, all turns are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)

	// Trim keeps only the newest keep turns of every session and returns
	// the number of turns removed.
	Trim(ctx context.Context, keep int) (int, error)

	// Purge removes all history for a session.
	Purge(ctx context.Context, sessionID string) error

	// Len returns the number of turns stored for a session.
	Len(ctx context.Context, sessionID string) (int, error)
}

// LastUserTurn returns the newest user turn in turns, if any.
func LastUserTurn(turns []Turn) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i], true
		}
	}
	return Turn{}, false
}
