package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
)

var _ memory.HistoryStore = (*HistoryStore)(nil)

// HistoryStore implements memory.HistoryStore on the turns table.
type HistoryStore struct {
	db *sql.DB
}

// Append adds turns to the session's history in one transaction.
func (h *HistoryStore) Append(ctx context.Context, sessionID string, turns ...memory.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, turn := range turns {
		at := turn.At
		if at.IsZero() {
			at = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (session_id, seq, role, text, at)
			VALUES (?, COALESCE((SELECT MAX(seq) FROM turns WHERE session_id = ?), 0) + 1, ?, ?, ?)`,
			sessionID, sessionID, string(turn.Role), turn.Text, at.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: append turn: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the n most recent turns for a session in chronological order.
func (h *HistoryStore) Recent(ctx context.Context, sessionID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT role, text, at
		FROM turns
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []memory.Turn
	for rows.Next() {
		var (
			turn memory.Turn
			role string
			at   int64
		)
		if err := rows.Scan(&role, &turn.Text, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		turn.Role = memory.Role(role)
		turn.At = time.Unix(0, at).UTC()
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent turn rows: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

// Trim keeps the newest keep turns of every session.
func (h *HistoryStore) Trim(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM turns
		WHERE seq <= (SELECT MAX(t.seq) FROM turns t WHERE t.session_id = turns.session_id) - ?`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: trim turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: trim rows affected: %w", err)
	}
	return int(n), nil
}

// Purge removes all history for a session.
func (h *HistoryStore) Purge(ctx context.Context, sessionID string) error {
	if _, err := h.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("sqlite: purge turns: %w", err)
	}
	return nil
}

// Len returns the number of turns stored for a session.
func (h *HistoryStore) Len(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count turns: %w", err)
	}
	return count, nil
}
