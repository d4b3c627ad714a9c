package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
)

// Compile-time interface guards.
var (
	_ memory.Store       = (*RecordStore)(nil)
	_ memory.ScopeLister = (*RecordStore)(nil)
)

// RecordStore implements memory.Store on the records and record_vectors
// tables. Similarity search is an exact scan of the scope's vectors for one
// channel.
type RecordStore struct {
	db  *sql.DB
	dim int
}

const recordColumns = `r.id, r.owner_id, r.scope_id, r.kind, r.text_primary, r.text_secondary,
	r.visibility, r.channel_id, r.created_at, r.signals`

// Put validates and stores a new record with all of its vectors in one
// transaction.
func (s *RecordStore) Put(ctx context.Context, rec memory.Record) error {
	if err := rec.Validate(s.dim); err != nil {
		return err
	}

	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("sqlite: marshal signals: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin put tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE scope_id = ? AND id = ?", rec.ScopeID, rec.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: check record: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", memory.ErrDuplicateRecord, rec.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (scope_id, id, owner_id, kind, text_primary, text_secondary,
		                     visibility, channel_id, created_at, signals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScopeID, rec.ID, rec.OwnerID, string(rec.Kind), rec.TextPrimary, rec.TextSecondary,
		string(rec.Visibility.Level), rec.Visibility.ChannelID, rec.CreatedAt.UnixNano(), string(signals),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert record: %w", err)
	}

	for ch, v := range rec.Vectors {
		if len(v) == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO record_vectors (scope_id, record_id, channel, vec) VALUES (?, ?, ?, ?)",
			rec.ScopeID, rec.ID, string(ch), encodeVector(v),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert %s vector: %w", ch, err)
		}
	}

	return tx.Commit()
}

// Search scores every vector of channel ch in the scope against query.
func (s *RecordStore) Search(ctx context.Context, scopeID string, ch memory.Channel, query memory.Vector, k int, filter memory.Filter) ([]memory.Hit, error) {
	if err := memory.CheckQuery(ch, query, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, v.vec
		FROM record_vectors v
		JOIN records r ON r.scope_id = v.scope_id AND r.id = v.record_id
		WHERE v.scope_id = ? AND v.channel = ? AND (? = '' OR r.owner_id = ?)`,
		scopeID, string(ch), filter.OwnerID, filter.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search %s: %w", ch, err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []memory.Record
	for rows.Next() {
		var blob []byte
		rec, err := scanRecord(rows, &blob)
		if err != nil {
			return nil, err
		}
		if !filter.Match(rec) {
			continue
		}
		v, err := decodeVector(blob, s.dim)
		if err != nil {
			return nil, err
		}
		rec.Vectors = map[memory.Channel]memory.Vector{ch: v}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search rows: %w", err)
	}

	return memory.RankByCosine(candidates, ch, query, k), nil
}

// Get returns the record with the given id and all of its vectors.
func (s *RecordStore) Get(ctx context.Context, scopeID, id string) (memory.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records r
		WHERE r.scope_id = ? AND r.id = ?`,
		scopeID, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Record{}, memory.ErrRecordNotFound
		}
		return memory.Record{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT channel, vec FROM record_vectors WHERE scope_id = ? AND record_id = ?",
		scopeID, id,
	)
	if err != nil {
		return memory.Record{}, fmt.Errorf("sqlite: get vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rec.Vectors = make(map[memory.Channel]memory.Vector)
	for rows.Next() {
		var (
			ch   string
			blob []byte
		)
		if err := rows.Scan(&ch, &blob); err != nil {
			return memory.Record{}, fmt.Errorf("sqlite: scan vector: %w", err)
		}
		v, err := decodeVector(blob, s.dim)
		if err != nil {
			return memory.Record{}, err
		}
		rec.Vectors[memory.Channel(ch)] = v
	}
	if err := rows.Err(); err != nil {
		return memory.Record{}, fmt.Errorf("sqlite: get vector rows: %w", err)
	}
	return rec, nil
}

// Recent returns up to k matching records, newest first. Vectors are not
// loaded.
func (s *RecordStore) Recent(ctx context.Context, scopeID string, k int, filter memory.Filter) ([]memory.Record, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records r
		WHERE r.scope_id = ? AND (? = '' OR r.owner_id = ?)
		ORDER BY r.created_at DESC, r.id ASC`,
		scopeID, filter.OwnerID, filter.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []memory.Record
	for rows.Next() && len(result) < k {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			result = append(result, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent rows: %w", err)
	}
	return result, nil
}

// Count returns the number of records in the scope.
func (s *RecordStore) Count(ctx context.Context, scopeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE scope_id = ?", scopeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count records: %w", err)
	}
	return n, nil
}

// Dimensions returns the vector length accepted by the store.
func (s *RecordStore) Dimensions() int {
	return s.dim
}

// Scopes returns the ids of every non-empty scope, sorted.
func (s *RecordStore) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT scope_id FROM records ORDER BY scope_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan scope: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scope rows: %w", err)
	}
	return ids, nil
}

// Optimize runs PRAGMA optimize so the query planner statistics stay current.
func (s *RecordStore) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite: optimize: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, extra ...any) (memory.Record, error) {
	var (
		rec        memory.Record
		kind       string
		visibility string
		createdAt  int64
		signals    string
	)

	dest := []any{
		&rec.ID, &rec.OwnerID, &rec.ScopeID, &kind, &rec.TextPrimary, &rec.TextSecondary,
		&visibility, &rec.Visibility.ChannelID, &createdAt, &signals,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return rec, fmt.Errorf("sqlite: scan record: %w", err)
	}

	rec.Kind = memory.Kind(kind)
	rec.Visibility.Level = memory.VisibilityLevel(visibility)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	if signals != "" && signals != "{}" {
		if err := json.Unmarshal([]byte(signals), &rec.Signals); err != nil {
			return rec, fmt.Errorf("sqlite: unmarshal signals: %w", err)
		}
	}
	return rec, nil
}
