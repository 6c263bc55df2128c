// Package counter aggregates numbers of exported objects by type and of
// exported geometries by kind.
package counter

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Delta is a batch of increments published by one worker for one feature.
type Delta struct {
	// Objects maps objectclass id to the number of exported objects.
	Objects map[int]int64

	// Geometries maps geometry kind to the number of exported geometries.
	Geometries map[string]int64
}

// NewDelta creates an empty Delta.
func NewDelta() Delta {
	return Delta{
		Objects:    make(map[int]int64),
		Geometries: make(map[string]int64),
	}
}

// IsEmpty is true when the delta carries no increments.
func (d Delta) IsEmpty() bool {
	return len(d.Objects) == 0 && len(d.Geometries) == 0
}

// Counters is safe for concurrent use.
type Counters struct {
	mu         sync.Mutex
	objects    map[int]int64
	geometries map[string]int64
}

// New creates empty Counters.
func New() *Counters {
	return &Counters{
		objects:    make(map[int]int64),
		geometries: make(map[string]int64),
	}
}

// Add merges a delta.
func (c *Counters) Add(d Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range d.Objects {
		c.objects[k] += v
	}
	for k, v := range d.Geometries {
		c.geometries[k] += v
	}
}

// Merge adds everything counted by other.
func (c *Counters) Merge(other *Counters) {
	c.Add(other.Snapshot())
}

// Snapshot returns a copy of the counters.
func (c *Counters) Snapshot() Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Delta{
		Objects:    maps.Clone(c.objects),
		Geometries: maps.Clone(c.geometries),
	}
}

// Objects returns the total number of exported objects.
func (c *Counters) Objects() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res int64
	for _, v := range c.objects {
		res += v
	}
	return res
}

// Geometries returns the total number of exported geometries.
func (c *Counters) Geometries() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res int64
	for _, v := range c.geometries {
		res += v
	}
	return res
}

// Summary formats counters as lines "name: count" sorted by name. The
// names of object types come from nameOf.
func (d Delta) Summary(nameOf func(int) string) []string {
	var res []string
	for _, id := range slices.Sorted(maps.Keys(d.Objects)) {
		res = append(res, line(nameOf(id), d.Objects[id]))
	}
	for _, kind := range slices.Sorted(maps.Keys(d.Geometries)) {
		res = append(res, line(kind, d.Geometries[kind]))
	}
	return res
}

func line(name string, n int64) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(humanize.Comma(n))
	return sb.String()
}
