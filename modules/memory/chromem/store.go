package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/flemzord/mnemo/internal/memory"
)

// Compile-time interface guards.
var (
	_ memory.Store       = (*Store)(nil)
	_ memory.ScopeLister = (*Store)(nil)
)

const nameSep = "::"

// Store implements memory.Store on chromem-go. Each scope gets one
// collection per channel. The content collection carries the serialized
// record; the affect and context collections carry only the embedding and
// the metadata needed for filtering.
type Store struct {
	db  *chromem.DB
	dim int

	// mu makes a multi-collection Put atomic for readers.
	mu sync.RWMutex
}

// New wraps db as a store for vectors of length dim.
func New(db *chromem.DB, dim int) *Store {
	return &Store{db: db, dim: dim}
}

// NewInMemory returns a store backed by a fresh non-persistent database.
func NewInMemory(dim int) *Store {
	return New(chromem.NewDB(), dim)
}

func collectionName(scopeID string, ch memory.Channel) string {
	return scopeID + nameSep + string(ch)
}

func (s *Store) collection(scopeID string, ch memory.Channel) (*chromem.Collection, error) {
	// Embeddings are always supplied, so no embedding func is needed.
	col, err := s.db.GetOrCreateCollection(collectionName(scopeID, ch), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s/%s: %w", scopeID, ch, err)
	}
	return col, nil
}

func (s *Store) existing(scopeID string, ch memory.Channel) *chromem.Collection {
	return s.db.GetCollection(collectionName(scopeID, ch), nil)
}

// Put validates and stores a new record. Optional channels are written
// before content and rolled back on failure.
func (s *Store) Put(ctx context.Context, rec memory.Record) error {
	if err := rec.Validate(s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.collection(rec.ScopeID, memory.ChannelContent)
	if err != nil {
		return err
	}
	if _, err := content.GetByID(ctx, rec.ID); err == nil {
		return fmt.Errorf("%w: %s", memory.ErrDuplicateRecord, rec.ID)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("chromem: marshal record: %w", err)
	}
	meta := metadata(rec)

	var written []*chromem.Collection
	rollback := func() {
		for _, col := range written {
			_ = col.Delete(context.WithoutCancel(ctx), nil, nil, rec.ID)
		}
	}

	for _, ch := range []memory.Channel{memory.ChannelAffect, memory.ChannelContext} {
		v, ok := rec.Vector(ch)
		if !ok {
			continue
		}
		col, err := s.collection(rec.ScopeID, ch)
		if err != nil {
			rollback()
			return err
		}
		doc := chromem.Document{ID: rec.ID, Metadata: meta, Embedding: slices.Clone(v), Content: rec.ID}
		if err := col.AddDocument(ctx, doc); err != nil {
			rollback()
			return fmt.Errorf("chromem: add %s document: %w", ch, err)
		}
		written = append(written, col)
	}

	v, _ := rec.Vector(memory.ChannelContent)
	doc := chromem.Document{ID: rec.ID, Metadata: meta, Embedding: slices.Clone(v), Content: string(body)}
	if err := content.AddDocument(ctx, doc); err != nil {
		rollback()
		return fmt.Errorf("chromem: add content document: %w", err)
	}
	return nil
}

// Search runs an exact nearest-neighbor query on the scope's ch collection.
func (s *Store) Search(ctx context.Context, scopeID string, ch memory.Channel, query memory.Vector, k int, filter memory.Filter) ([]memory.Hit, error) {
	if err := memory.CheckQuery(ch, query, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.queryAll(ctx, s.existing(scopeID, ch), query, filter)
	if err != nil {
		return nil, err
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, res := range results {
		if !filter.Match(fromMetadata(res.ID, scopeID, res.Metadata)) {
			continue
		}
		hits = append(hits, memory.Hit{ID: res.ID, Score: float64(res.Similarity)})
	}
	memory.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// queryAll returns every document of col, optionally narrowed to one owner.
func (s *Store) queryAll(ctx context.Context, col *chromem.Collection, query memory.Vector, filter memory.Filter) ([]chromem.Result, error) {
	if col == nil {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	var where map[string]string
	if filter.OwnerID != "" {
		where = map[string]string{"owner_id": filter.OwnerID}
	}
	results, err := col.QueryEmbedding(ctx, slices.Clone(query), n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}
	return results, nil
}

// Get returns the record with the given id and all of its vectors.
func (s *Store) Get(ctx context.Context, scopeID, id string) (memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content := s.existing(scopeID, memory.ChannelContent)
	if content == nil {
		return memory.Record{}, memory.ErrRecordNotFound
	}
	doc, err := content.GetByID(ctx, id)
	if err != nil {
		return memory.Record{}, memory.ErrRecordNotFound
	}
	rec, err := decode(doc.Content)
	if err != nil {
		return memory.Record{}, err
	}

	rec.Vectors = map[memory.Channel]memory.Vector{memory.ChannelContent: slices.Clone(doc.Embedding)}
	for _, ch := range []memory.Channel{memory.ChannelAffect, memory.ChannelContext} {
		col := s.existing(scopeID, ch)
		if col == nil {
			continue
		}
		if d, err := col.GetByID(ctx, id); err == nil {
			rec.Vectors[ch] = slices.Clone(d.Embedding)
		}
	}
	return rec, nil
}

// Recent returns up to k matching records, newest first. Vectors are not
// loaded.
func (s *Store) Recent(ctx context.Context, scopeID string, k int, filter memory.Filter) ([]memory.Record, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Any non-zero probe returns every document; order is fixed below.
	probe := make(memory.Vector, s.dim)
	probe[0] = 1
	results, err := s.queryAll(ctx, s.existing(scopeID, memory.ChannelContent), probe, filter)
	if err != nil {
		return nil, err
	}

	records := make([]memory.Record, 0, len(results))
	for _, res := range results {
		rec, err := decode(res.Content)
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			records = append(records, rec)
		}
	}
	memory.SortRecent(records)
	if len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// Count returns the number of records in the scope.
func (s *Store) Count(_ context.Context, scopeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.existing(scopeID, memory.ChannelContent)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Dimensions returns the vector length accepted by the store.
func (s *Store) Dimensions() int {
	return s.dim
}

// Scopes returns the ids of every non-empty scope, sorted.
func (s *Store) Scopes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for name, col := range s.db.ListCollections() {
		scope, ok := strings.CutSuffix(name, nameSep+string(memory.ChannelContent))
		if ok && col.Count() > 0 {
			ids = append(ids, scope)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func metadata(rec memory.Record) map[string]string {
	return map[string]string{
		"owner_id":   rec.OwnerID,
		"kind":       string(rec.Kind),
		"visibility": string(rec.Visibility.Level),
		"channel_id": rec.Visibility.ChannelID,
		"created_at": strconv.FormatInt(rec.CreatedAt.UnixNano(), 10),
	}
}

// fromMetadata rebuilds the fields Filter.Match looks at.
func fromMetadata(id, scopeID string, meta map[string]string) memory.Record {
	created, _ := strconv.ParseInt(meta["created_at"], 10, 64)
	return memory.Record{
		ID:      id,
		ScopeID: scopeID,
		OwnerID: meta["owner_id"],
		Kind:    memory.Kind(meta["kind"]),
		Visibility: memory.Visibility{
			Level:     memory.VisibilityLevel(meta["visibility"]),
			ChannelID: meta["channel_id"],
		},
		CreatedAt: time.Unix(0, created).UTC(),
	}
}

var errCorrupt = errors.New("chromem: corrupt record document")

func decode(body string) (memory.Record, error) {
	var rec memory.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return memory.Record{}, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	return rec, nil
}
