// Package idcache translates external ids (gml:id) into internal surrogate
// ids.
//
// The cache is split into shards chosen by a hash of the external id. Each
// shard keeps at most PageSize entries in an LRU list and is locked on its
// own. When an insertion makes a shard too large, its least recently used
// entries are moved to a Spill in one batch. A lookup that misses memory
// asks the Spill and promotes the hit back into the shard. Entries of a
// failed spill stay in memory until a later spill of their shard succeeds.
package idcache

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Entry is one cached translation.
type Entry struct {
	// Key is the external id.
	Key string

	// InternalID is the surrogate id of the database row.
	InternalID int64

	// Resolved is true once the feature or geometry with this id was
	// written.
	Resolved bool
}

// Spill stores entries evicted from memory. Implementations must treat
// PutBatch as an upsert by Key.
type Spill interface {
	PutBatch(ctx context.Context, shard int, entries []Entry) error
	GetBatch(ctx context.Context, shard int, keys []string) (map[string]Entry, error)
}

// Config sizes a Cache.
type Config struct {
	// Name is used in errors and logs, for example "object" or "geometry".
	Name string

	// Partitions is the number of shards.
	Partitions int

	// PageSize is the maximum number of in-memory entries per shard.
	PageSize int
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries  int
	Pending  int
	Spilled  int64
	Promoted int64
	Misses   int64
}

// Cache is a partitioned two-tier map from external to internal ids.
type Cache struct {
	name     string
	pageSize int
	lowWater int
	seed     maphash.Seed
	shards   []*shard
	spill    Spill

	spilled  atomic.Int64
	promoted atomic.Int64
	misses   atomic.Int64
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, Entry]

	// pending keeps entries the spill refused.
	pending map[string]Entry
}

// New creates a cache. A nil spill means a MemorySpill.
func New(cfg Config, spill Spill) (*Cache, error) {
	if cfg.Partitions < 1 || cfg.PageSize < 1 {
		return nil, fmt.Errorf(
			"cache %s: partitions and page size must be positive, got %d, %d",
			cfg.Name, cfg.Partitions, cfg.PageSize,
		)
	}
	if spill == nil {
		spill = NewMemorySpill()
	}

	res := &Cache{
		name:     cfg.Name,
		pageSize: cfg.PageSize,
		// spill a quarter of a page at once
		lowWater: cfg.PageSize - max(cfg.PageSize/4, 1),
		seed:     maphash.MakeSeed(),
		shards:   make([]*shard, cfg.Partitions),
		spill:    spill,
	}

	for i := range res.shards {
		// one slot above the page, the overflow is spilled right away
		l, err := simplelru.NewLRU[string, Entry](cfg.PageSize+1, nil)
		if err != nil {
			return nil, err
		}
		res.shards[i] = &shard{lru: l, pending: make(map[string]Entry)}
	}
	return res, nil
}

// Name returns the name of the cache.
func (c *Cache) Name() string {
	return c.name
}

// Partitions returns the number of shards.
func (c *Cache) Partitions() int {
	return len(c.shards)
}

// PageSize returns the in-memory limit of one shard.
func (c *Cache) PageSize() int {
	return c.pageSize
}

// ShardOf returns the shard index of an external id.
func (c *Cache) ShardOf(key string) int {
	return int(maphash.String(c.seed, key) % uint64(len(c.shards)))
}

// Get returns the entry of an external id.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	idx := c.ShardOf(key)
	s := c.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	return c.lookup(ctx, idx, s, key)
}

// Put inserts or replaces the entry of an external id.
func (c *Cache) Put(ctx context.Context, key string, id int64, resolved bool) error {
	idx := c.ShardOf(key)
	s := c.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	return c.add(ctx, idx, s, Entry{Key: key, InternalID: id, Resolved: resolved})
}

// PutIfAbsent inserts an unresolved entry when the external id is unknown.
// It returns the entry stored in the cache and true when the call created
// it. Exactly one of concurrent callers with the same key gets true. A
// spill error does not undo the insertion, it is returned together with
// true.
func (c *Cache) PutIfAbsent(
	ctx context.Context,
	key string,
	id int64,
) (Entry, bool, error) {
	idx := c.ShardOf(key)
	s := c.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok, err := c.lookup(ctx, idx, s, key)
	if err != nil || ok {
		return ent, false, err
	}

	ent = Entry{Key: key, InternalID: id}
	err = c.add(ctx, idx, s, ent)
	return ent, true, err
}

// Resolve marks an external id as resolved. Unknown ids are inserted.
func (c *Cache) Resolve(ctx context.Context, key string, id int64) error {
	return c.Put(ctx, key, id, true)
}

// ShardLen returns the number of entries in the LRU of a shard. Pending
// entries of a failed spill are not included.
func (c *Cache) ShardLen(idx int) int {
	s := c.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	var n, pending int
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		pending += len(s.pending)
		s.mu.Unlock()
	}
	return Stats{
		Entries:  n,
		Pending:  pending,
		Spilled:  c.spilled.Load(),
		Promoted: c.promoted.Load(),
		Misses:   c.misses.Load(),
	}
}

// lookup expects the shard lock to be held.
func (c *Cache) lookup(
	ctx context.Context,
	idx int,
	s *shard,
	key string,
) (Entry, bool, error) {
	if ent, ok := s.lru.Get(key); ok {
		return ent, true, nil
	}
	if ent, ok := s.pending[key]; ok {
		return ent, true, nil
	}

	if c.spilled.Load() == 0 {
		c.misses.Add(1)
		return Entry{}, false, nil
	}

	found, err := c.spill.GetBatch(ctx, idx, []string{key})
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache %s shard %d: %w", c.name, idx, err)
	}
	ent, ok := found[key]
	if !ok {
		c.misses.Add(1)
		return Entry{}, false, nil
	}

	c.promoted.Add(1)
	if err = c.add(ctx, idx, s, ent); err != nil {
		return ent, true, err
	}
	return ent, true, nil
}

// add expects the shard lock to be held. When the shard grows over its
// page the oldest entries go to the spill before add returns, together
// with entries of an earlier failed spill. Entries the spill refuses stay
// pending in memory.
func (c *Cache) add(ctx context.Context, idx int, s *shard, ent Entry) error {
	s.lru.Add(ent.Key, ent)
	// the copy in the LRU is newer
	delete(s.pending, ent.Key)
	if s.lru.Len() <= c.pageSize {
		return nil
	}

	batch := make([]Entry, 0, len(s.pending)+s.lru.Len()-c.lowWater)
	for _, v := range s.pending {
		batch = append(batch, v)
	}
	for s.lru.Len() > c.lowWater {
		_, old, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		batch = append(batch, old)
	}

	if err := c.spill.PutBatch(ctx, idx, batch); err != nil {
		for _, v := range batch {
			s.pending[v.Key] = v
		}
		return fmt.Errorf(
			"cache %s shard %d: spill of %d entries: %w",
			c.name, idx, len(batch), err,
		)
	}
	clear(s.pending)
	c.spilled.Add(int64(len(batch)))
	return nil
}
