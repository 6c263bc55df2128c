// Package workerpool provides a generic bounded pool of workers.
//
// A Pool owns a queue of fixed capacity and a set of workers whose number
// moves between a minimum and a maximum according to a Strategy. Every
// worker is created by a Factory and keeps its own state (for example a
// database connection) for its whole life.
//
// Submission blocks while the queue is full, so a fast producer cannot
// outrun the workers. Errors returned by workers never cross the pool:
// they go to the ErrorHandler given to New.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolShutdown is returned by Submit after the pool started to shut
	// down or its queue was drained.
	ErrPoolShutdown = errors.New("worker pool is shut down")

	// ErrNoWorkers is returned when the pool could not start a single
	// worker.
	ErrNoWorkers = errors.New("worker pool has no workers")
)

// Worker processes items of one pool.
type Worker[T any] interface {
	// Work processes one item. The context is cancelled by ShutdownNow.
	Work(ctx context.Context, item T) error

	// Close releases resources of the worker when it exits.
	Close() error
}

// Factory creates a new worker.
type Factory[T any] func(ctx context.Context) (Worker[T], error)

// ErrorHandler receives items that failed together with their error.
type ErrorHandler[T any] func(item T, err error)

// Config describes the shape of a pool.
type Config struct {
	// Name is used in logs.
	Name string

	// MinThreads is the number of core workers.
	MinThreads int

	// MaxThreads is the upper bound of live workers.
	MaxThreads int

	// QueueCapacity is the number of items that can wait for a worker.
	QueueCapacity int

	// Strategy moves the number of workers between MinThreads and
	// MaxThreads. Nil means FixedStrategy.
	Strategy Strategy

	// AllowCoreTimeout lets idle core workers retire as well.
	AllowCoreTimeout bool
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted   int64
	Completed   int64
	Failed      int64
	Discarded   int64
	LiveWorkers int
	PeakWorkers int
}

// Pool is a bounded pool of workers processing items of type T.
type Pool[T any] struct {
	cfg     Config
	factory Factory[T]
	onError ErrorHandler[T]

	queue chan T

	// abort is closed when queued items must not start anymore.
	abort     chan struct{}
	abortOnce sync.Once

	// ctx is given to workers, it is cancelled by ShutdownNow.
	ctx    context.Context
	cancel context.CancelFunc

	// mu protects closed and closing of the queue. Submit holds the read
	// lock while it sends into the queue.
	mu     sync.RWMutex
	closed bool

	// wmu protects the number of live workers.
	wmu  sync.Mutex
	live int
	peak int
	wg   sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
}

// New creates a pool. Workers are not started until Prestart or the first
// Submit.
func New[T any](
	cfg Config,
	factory Factory[T],
	onError ErrorHandler[T],
) *Pool[T] {
	cfg.MinThreads = max(cfg.MinThreads, 0)
	cfg.MaxThreads = max(cfg.MaxThreads, cfg.MinThreads, 1)
	cfg.QueueCapacity = max(cfg.QueueCapacity, 1)
	if cfg.Strategy == nil {
		cfg.Strategy = FixedStrategy{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[T]{
		cfg:     cfg,
		factory: factory,
		onError: onError,
		queue:   make(chan T, cfg.QueueCapacity),
		abort:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the name of the pool.
func (p *Pool[T]) Name() string {
	return p.cfg.Name
}

// Prestart starts MinThreads workers. It returns ErrNoWorkers when none of
// them could be created, so a pool that would silently process nothing is
// detected before the first item is submitted.
func (p *Pool[T]) Prestart() error {
	var lastErr error
	for range p.cfg.MinThreads {
		if _, err := p.spawn(); err != nil {
			lastErr = err
			slog.Warn("Cannot start worker", "pool", p.cfg.Name, "error", err)
		}
	}

	if p.Live() == 0 && p.cfg.MinThreads > 0 {
		if lastErr == nil {
			return ErrNoWorkers
		}
		return fmt.Errorf("%w: %w", ErrNoWorkers, lastErr)
	}
	return nil
}

// Submit puts an item into the queue. It blocks while the queue is full.
// It fails with ErrPoolShutdown after shutdown began and with the context
// error when ctx is done first.
func (p *Pool[T]) Submit(ctx context.Context, item T) error {
	if p.aborted() {
		return ErrPoolShutdown
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolShutdown
	}
	select {
	case p.queue <- item:
	case <-p.abort:
		p.mu.RUnlock()
		return ErrPoolShutdown
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	p.mu.RUnlock()

	p.submitted.Add(1)
	return p.adapt()
}

// ShutdownAndWait stops accepting new items and blocks until queued and
// in-flight items are processed and all workers exited. Items left in the
// queue after DrainWorkQueue or ShutdownNow are discarded. Queued items
// that found no worker because none could be started go to the
// ErrorHandler with ErrNoWorkers, and the error is returned.
func (p *Pool[T]) ShutdownAndWait() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	// queued items need at least one worker to be processed
	var startErr error
	if !p.aborted() && len(p.queue) > 0 {
		if startErr = p.adapt(); startErr != nil {
			slog.Error("Queued items have no worker",
				"pool", p.cfg.Name,
				"items", len(p.queue),
				"error", startErr,
			)
		}
	}

	p.wg.Wait()

	for item := range p.queue {
		if startErr == nil {
			p.discarded.Add(1)
			continue
		}
		p.failed.Add(1)
		if p.onError != nil {
			p.onError(item, startErr)
		}
	}
	p.cancel()
	return startErr
}

// DrainWorkQueue discards items that did not start yet. Items being
// processed run to completion. After the call Submit fails with
// ErrPoolShutdown. It returns the number of discarded items.
func (p *Pool[T]) DrainWorkQueue() int {
	p.abortOnce.Do(func() { close(p.abort) })
	return p.discardQueued()
}

// ShutdownNow discards queued items and cancels the context of items in
// flight. It does not wait for workers, use ShutdownAndWait for that.
// It returns the number of discarded items.
func (p *Pool[T]) ShutdownNow() int {
	p.abortOnce.Do(func() { close(p.abort) })
	p.cancel()
	return p.discardQueued()
}

// Live returns the number of live workers.
func (p *Pool[T]) Live() int {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.live
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.wmu.Lock()
	live, peak := p.live, p.peak
	p.wmu.Unlock()
	return Stats{
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		Discarded:   p.discarded.Load(),
		LiveWorkers: live,
		PeakWorkers: peak,
	}
}

func (p *Pool[T]) aborted() bool {
	select {
	case <-p.abort:
		return true
	default:
		return false
	}
}

func (p *Pool[T]) discardQueued() int {
	var n int
	for {
		select {
		case _, ok := <-p.queue:
			if !ok {
				return n
			}
			n++
			p.discarded.Add(1)
		default:
			return n
		}
	}
}

// adapt starts a new worker when the queue has items and nobody is there
// to take them, or when the strategy asks for growth.
func (p *Pool[T]) adapt() error {
	p.wmu.Lock()
	backlog := len(p.queue)
	live := p.live
	grow := live == 0 ||
		(live < p.cfg.MaxThreads &&
			p.cfg.Strategy.Grow(live, p.cfg.MaxThreads, backlog))
	p.wmu.Unlock()

	if !grow {
		return nil
	}

	_, err := p.spawn()
	if err == nil {
		return nil
	}
	slog.Warn("Cannot start worker", "pool", p.cfg.Name, "error", err)
	if p.Live() == 0 {
		return fmt.Errorf("%w: %w", ErrNoWorkers, err)
	}
	return nil
}

// spawn reserves a worker slot, creates the worker and starts it. It
// returns false without error when the pool is already at its maximum.
func (p *Pool[T]) spawn() (bool, error) {
	p.wmu.Lock()
	if p.live >= p.cfg.MaxThreads {
		p.wmu.Unlock()
		return false, nil
	}
	p.live++
	p.peak = max(p.peak, p.live)
	p.wg.Add(1)
	p.wmu.Unlock()

	w, err := p.factory(p.ctx)
	if err != nil {
		p.release()
		p.wg.Done()
		return false, err
	}

	go p.run(w)
	return true, nil
}

func (p *Pool[T]) release() {
	p.wmu.Lock()
	p.live--
	p.wmu.Unlock()
}

// tryRetire lets an idle worker exit when the pool is above its floor and
// nothing is waiting in the queue.
func (p *Pool[T]) tryRetire() bool {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	floor := p.cfg.MinThreads
	if p.cfg.AllowCoreTimeout {
		floor = 0
	}
	if p.live > floor && len(p.queue) == 0 {
		p.live--
		return true
	}
	return false
}

func (p *Pool[T]) run(w Worker[T]) {
	defer p.wg.Done()
	defer func() {
		if err := w.Close(); err != nil {
			slog.Warn("Cannot close worker", "pool", p.cfg.Name, "error", err)
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if d := p.cfg.Strategy.IdleTimeout(); d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		if timer != nil {
			timer.Reset(p.cfg.Strategy.IdleTimeout())
		}

		select {
		case <-p.abort:
			p.release()
			return
		case item, ok := <-p.queue:
			if !ok {
				p.release()
				return
			}
			if p.aborted() {
				p.discarded.Add(1)
				continue
			}
			p.process(w, item)
		case <-idle:
			if p.tryRetire() {
				return
			}
		}
	}
}

func (p *Pool[T]) process(w Worker[T], item T) {
	err := p.safeWork(w, item)
	if err == nil {
		p.completed.Add(1)
		return
	}
	p.failed.Add(1)
	if p.onError != nil {
		p.onError(item, err)
		return
	}
	slog.Error("Item failed", "pool", p.cfg.Name, "error", err)
}

func (p *Pool[T]) safeWork(w Worker[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Work(p.ctx, item)
}
