package idcache

import (
	"context"
	"sync"
)

// MemorySpill keeps spilled entries in maps, one per shard. It is used
// when no staging storage is configured and in tests.
type MemorySpill struct {
	mu     sync.RWMutex
	shards map[int]map[string]Entry
}

// NewMemorySpill creates an empty MemorySpill.
func NewMemorySpill() *MemorySpill {
	return &MemorySpill{shards: make(map[int]map[string]Entry)}
}

func (m *MemorySpill) PutBatch(_ context.Context, shard int, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	part, ok := m.shards[shard]
	if !ok {
		part = make(map[string]Entry)
		m.shards[shard] = part
	}
	for _, v := range entries {
		part[v.Key] = v
	}
	return nil
}

func (m *MemorySpill) GetBatch(
	_ context.Context,
	shard int,
	keys []string,
) (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]Entry, len(keys))
	part := m.shards[shard]
	for _, k := range keys {
		if v, ok := part[k]; ok {
			res[k] = v
		}
	}
	return res, nil
}

// Len returns the number of spilled entries of a shard.
func (m *MemorySpill) Len(shard int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shards[shard])
}
