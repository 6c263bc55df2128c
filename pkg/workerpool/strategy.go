package workerpool

import (
	"strings"
	"time"
)

// Strategy decides how the number of live workers moves between the
// minimum and the maximum of a pool.
type Strategy interface {
	// Grow is asked after every submission. It returns true when one more
	// worker should be started. live is always less than maxThreads.
	Grow(live, maxThreads, backlog int) bool

	// IdleTimeout is how long a worker waits for work before it may
	// retire. Zero means workers never retire.
	IdleTimeout() time.Duration
}

// FixedStrategy keeps the pool at its minimum size.
type FixedStrategy struct{}

func (FixedStrategy) Grow(int, int, int) bool     { return false }
func (FixedStrategy) IdleTimeout() time.Duration { return 0 }

// ConservativeStrategy adds a worker only when queued items outnumber the
// live workers, and retires idle workers quickly.
type ConservativeStrategy struct {
	Idle time.Duration
}

func (s ConservativeStrategy) Grow(live, _, backlog int) bool {
	return backlog > live
}

func (s ConservativeStrategy) IdleTimeout() time.Duration {
	return s.Idle
}

// AggressiveStrategy adds a worker whenever anything is waiting in the
// queue and retires workers only after a long idle period.
type AggressiveStrategy struct {
	Idle time.Duration
}

func (s AggressiveStrategy) Grow(_, _, backlog int) bool {
	return backlog > 0
}

func (s AggressiveStrategy) IdleTimeout() time.Duration {
	return s.Idle
}

// NewStrategy returns a strategy by its configuration name. Unknown names
// fall back to the aggressive strategy.
func NewStrategy(name string) Strategy {
	switch strings.ToLower(name) {
	case "fixed":
		return FixedStrategy{}
	case "conservative":
		return ConservativeStrategy{Idle: 5 * time.Second}
	default:
		return AggressiveStrategy{Idle: 30 * time.Second}
	}
}
