// Package events connects workers of an export run with the coordinator.
//
// Workers publish counter increments and fatal interrupts to a Bus. The
// Bus is passed explicitly to every component that publishes, there is no
// global dispatcher.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gnames/gncity/pkg/counter"
)

// Bus is safe for concurrent publication.
type Bus struct {
	mu   sync.Mutex
	tile *counter.Counters

	once        sync.Once
	interrupted chan struct{}
	cause       error
	msg         string

	degraded atomic.Bool
	rmu      sync.Mutex
	reasons  []string
}

// New creates a Bus with empty tile counters.
func New() *Bus {
	return &Bus{
		tile:        counter.New(),
		interrupted: make(chan struct{}),
	}
}

// StartTile replaces the tile counters with empty ones and returns the
// counters of the previous tile.
func (b *Bus) StartTile() *counter.Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := b.tile
	b.tile = counter.New()
	return res
}

// TileCounters returns the counters of the current tile.
func (b *Bus) TileCounters() *counter.Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tile
}

// Count merges a delta into the counters of the current tile.
func (b *Bus) Count(d counter.Delta) {
	if d.IsEmpty() {
		return
	}
	b.TileCounters().Add(d)
}

// Interrupt publishes a fatal event. Only the first call has an effect,
// later causes are logged and dropped. It returns true when this call
// triggered the interrupt.
func (b *Bus) Interrupt(cause error, msg string) bool {
	var first bool
	b.once.Do(func() {
		b.cause = cause
		b.msg = msg
		first = true
		close(b.interrupted)
	})
	if !first {
		slog.Debug("Interrupt already fired, ignoring", "error", cause, "message", msg)
	}
	return first
}

// Interrupted is closed after the first Interrupt.
func (b *Bus) Interrupted() <-chan struct{} {
	return b.interrupted
}

// IsInterrupted reports whether Interrupt was called.
func (b *Bus) IsInterrupted() bool {
	select {
	case <-b.interrupted:
		return true
	default:
		return false
	}
}

// Cause returns the error of the first Interrupt, nil while the run is not
// interrupted.
func (b *Bus) Cause() error {
	if !b.IsInterrupted() {
		return nil
	}
	return b.cause
}

// Message returns the message of the first Interrupt.
func (b *Bus) Message() string {
	if !b.IsInterrupted() {
		return ""
	}
	return b.msg
}

// Degrade marks the run as degraded. Degraded runs may still succeed.
func (b *Bus) Degrade(reason string) {
	b.degraded.Store(true)
	b.rmu.Lock()
	b.reasons = append(b.reasons, reason)
	b.rmu.Unlock()
	slog.Warn("Export degraded", "reason", reason)
}

// Degraded reports whether Degrade was called.
func (b *Bus) Degraded() bool {
	return b.degraded.Load()
}

// Reasons returns the reasons given to Degrade.
func (b *Bus) Reasons() []string {
	b.rmu.Lock()
	defer b.rmu.Unlock()
	return append([]string(nil), b.reasons...)
}
