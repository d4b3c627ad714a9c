package retrieval

import (
	"github.com/dgraph-io/ristretto"

	"github.com/flemzord/mnemo/internal/memory"
)

// recordCache memoizes hydrated records. Records are immutable once written,
// so entries never need invalidation; eviction only bounds memory.
type recordCache struct {
	c *ristretto.Cache
}

func newRecordCache(size int64) (*recordCache, error) {
	if size < 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &recordCache{c: c}, nil
}

func cacheKey(scopeID, id string) string {
	return scopeID + "\x00" + id
}

func (rc *recordCache) get(scopeID, id string) (memory.Record, bool) {
	if rc == nil {
		return memory.Record{}, false
	}
	v, ok := rc.c.Get(cacheKey(scopeID, id))
	if !ok {
		return memory.Record{}, false
	}
	rec, ok := v.(memory.Record)
	if !ok {
		return memory.Record{}, false
	}
	return rec.Clone(), true
}

func (rc *recordCache) set(rec memory.Record) {
	if rc == nil {
		return
	}
	rc.c.Set(cacheKey(rec.ScopeID, rec.ID), rec.Clone(), 1)
}

func (rc *recordCache) close() {
	if rc == nil {
		return
	}
	rc.c.Close()
}
