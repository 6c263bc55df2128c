package ioexport

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// exportedSet keeps surrogate ids of features written during a run. It
// spans all tiles, so a feature is never written twice even when tile
// predicates overlap.
type exportedSet struct {
	mu sync.Mutex
	bm *roaring64.Bitmap
}

func newExportedSet() *exportedSet {
	return &exportedSet{bm: roaring64.New()}
}

func (s *exportedSet) add(id int64) {
	s.mu.Lock()
	s.bm.Add(uint64(id))
	s.mu.Unlock()
}

func (s *exportedSet) contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.Contains(uint64(id))
}

func (s *exportedSet) len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.GetCardinality()
}
