package workerpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gnames/gncity/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWorker struct {
	fn     func(ctx context.Context, n int) error
	closed *atomic.Int64
}

func (w *testWorker) Work(ctx context.Context, n int) error {
	return w.fn(ctx, n)
}

func (w *testWorker) Close() error {
	if w.closed != nil {
		w.closed.Add(1)
	}
	return nil
}

func factory(
	fn func(ctx context.Context, n int) error,
	closed *atomic.Int64,
) workerpool.Factory[int] {
	return func(context.Context) (workerpool.Worker[int], error) {
		return &testWorker{fn: fn, closed: closed}, nil
	}
}

// blocker makes every item wait until release is closed.
type blocker struct {
	started atomic.Int64
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{release: make(chan struct{})}
}

func (b *blocker) work(_ context.Context, _ int) error {
	b.started.Add(1)
	<-b.release
	return nil
}

func TestPoolProcessesAll(t *testing.T) {
	assert := assert.New(t)
	var sum atomic.Int64
	var closed atomic.Int64
	fn := func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	}

	p := workerpool.New(workerpool.Config{
		Name:          "test",
		MinThreads:    2,
		MaxThreads:    6,
		QueueCapacity: 10,
		Strategy:      workerpool.AggressiveStrategy{Idle: time.Second},
	}, factory(fn, &closed), nil)
	require.NoError(t, p.Prestart())
	assert.Equal(2, p.Live())

	ctx := context.Background()
	var exp int64
	for i := 1; i <= 1_000; i++ {
		exp += int64(i)
		require.NoError(t, p.Submit(ctx, i))
	}
	p.ShutdownAndWait()

	st := p.Stats()
	assert.Equal(exp, sum.Load())
	assert.Equal(int64(1_000), st.Submitted)
	assert.Equal(int64(1_000), st.Completed)
	assert.Equal(int64(0), st.Discarded)
	assert.LessOrEqual(st.PeakWorkers, 6)
	assert.Equal(0, st.LiveWorkers)
	assert.GreaterOrEqual(closed.Load(), int64(st.PeakWorkers))
}

func TestPrestartNoWorkers(t *testing.T) {
	boom := errors.New("no connections left")
	fact := func(context.Context) (workerpool.Worker[int], error) {
		return nil, boom
	}
	p := workerpool.New(workerpool.Config{
		Name: "broken", MinThreads: 3, MaxThreads: 3, QueueCapacity: 1,
	}, fact, nil)

	err := p.Prestart()
	require.Error(t, err)
	assert.ErrorIs(t, err, workerpool.ErrNoWorkers)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Live())
	p.ShutdownAndWait()
}

func TestShutdownWithoutWorkers(t *testing.T) {
	boom := errors.New("no connections left")
	fact := func(context.Context) (workerpool.Worker[int], error) {
		return nil, boom
	}
	var mu sync.Mutex
	var lost []int
	onError := func(n int, err error) {
		assert.ErrorIs(t, err, workerpool.ErrNoWorkers)
		mu.Lock()
		lost = append(lost, n)
		mu.Unlock()
	}
	p := workerpool.New(workerpool.Config{
		Name: "broken", MinThreads: 0, MaxThreads: 1, QueueCapacity: 2,
	}, fact, onError)
	require.NoError(t, p.Prestart())

	for i := range 2 {
		err := p.Submit(context.Background(), i)
		assert.ErrorIs(t, err, workerpool.ErrNoWorkers)
	}

	err := p.ShutdownAndWait()
	assert.ErrorIs(t, err, workerpool.ErrNoWorkers)
	assert.ErrorIs(t, err, boom)
	assert.ElementsMatch(t, []int{0, 1}, lost)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(0), stats.Discarded)
}

func TestSubmitAfterShutdown(t *testing.T) {
	fn := func(context.Context, int) error { return nil }
	p := workerpool.New(workerpool.Config{
		Name: "closed", MinThreads: 1, MaxThreads: 1, QueueCapacity: 1,
	}, factory(fn, nil), nil)
	require.NoError(t, p.Prestart())
	p.ShutdownAndWait()

	err := p.Submit(context.Background(), 1)
	assert.ErrorIs(t, err, workerpool.ErrPoolShutdown)
}

func TestSubmitBackpressure(t *testing.T) {
	b := newBlocker()
	p := workerpool.New(workerpool.Config{
		Name: "bp", MinThreads: 1, MaxThreads: 1, QueueCapacity: 1,
	}, factory(b.work, nil), nil)
	require.NoError(t, p.Prestart())

	bg := context.Background()
	require.NoError(t, p.Submit(bg, 1))
	require.Eventually(t, func() bool { return b.started.Load() == 1 },
		time.Second, time.Millisecond)
	require.NoError(t, p.Submit(bg, 2))

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(b.release)
	p.ShutdownAndWait()
	assert.Equal(t, int64(2), p.Stats().Completed)
}

func TestDrainWorkQueue(t *testing.T) {
	assert := assert.New(t)
	b := newBlocker()
	p := workerpool.New(workerpool.Config{
		Name: "drain", MinThreads: 2, MaxThreads: 2, QueueCapacity: 20,
	}, factory(b.work, nil), nil)
	require.NoError(t, p.Prestart())

	bg := context.Background()
	for i := range 2 {
		require.NoError(t, p.Submit(bg, i))
	}
	require.Eventually(t, func() bool { return b.started.Load() == 2 },
		time.Second, time.Millisecond)
	for i := range 10 {
		require.NoError(t, p.Submit(bg, i))
	}

	n := p.DrainWorkQueue()
	assert.Equal(10, n)
	assert.ErrorIs(p.Submit(bg, 100), workerpool.ErrPoolShutdown)

	close(b.release)
	p.ShutdownAndWait()

	st := p.Stats()
	assert.Equal(int64(2), b.started.Load())
	assert.Equal(int64(2), st.Completed)
	assert.Equal(int64(10), st.Discarded)
	assert.Equal(int64(0), st.Failed)
}

func TestShutdownNow(t *testing.T) {
	assert := assert.New(t)
	var started atomic.Int64
	fn := func(ctx context.Context, _ int) error {
		started.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}

	var mu sync.Mutex
	var errs []error
	onErr := func(_ int, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	p := workerpool.New(workerpool.Config{
		Name: "now", MinThreads: 2, MaxThreads: 2, QueueCapacity: 20,
	}, factory(fn, nil), onErr)
	require.NoError(t, p.Prestart())

	bg := context.Background()
	for i := range 7 {
		require.NoError(t, p.Submit(bg, i))
	}
	require.Eventually(t, func() bool { return started.Load() == 2 },
		time.Second, time.Millisecond)

	n := p.ShutdownNow()
	assert.LessOrEqual(n, 5)
	p.ShutdownAndWait()

	assert.Equal(int64(2), started.Load())
	st := p.Stats()
	assert.Equal(int64(2), st.Failed)
	assert.Equal(int64(5), st.Discarded)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(err, context.Canceled)
	}
}

func TestAggressiveGrowth(t *testing.T) {
	b := newBlocker()
	p := workerpool.New(workerpool.Config{
		Name:          "grow",
		MinThreads:    1,
		MaxThreads:    4,
		QueueCapacity: 10,
		Strategy:      workerpool.AggressiveStrategy{Idle: time.Minute},
	}, factory(b.work, nil), nil)
	require.NoError(t, p.Prestart())

	bg := context.Background()
	for i := range 8 {
		require.NoError(t, p.Submit(bg, i))
	}
	assert.Equal(t, 4, p.Live())

	close(b.release)
	p.ShutdownAndWait()
	st := p.Stats()
	assert.Equal(t, 4, st.PeakWorkers)
	assert.Equal(t, int64(8), st.Completed)
}

func TestIdleRetirement(t *testing.T) {
	tests := []struct {
		name     string
		coreIdle bool
		floor    int
	}{
		{"keeps core workers", false, 1},
		{"retires core workers", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBlocker()
			p := workerpool.New(workerpool.Config{
				Name:             "idle",
				MinThreads:       1,
				MaxThreads:       3,
				QueueCapacity:    10,
				Strategy:         workerpool.AggressiveStrategy{Idle: 20 * time.Millisecond},
				AllowCoreTimeout: tt.coreIdle,
			}, factory(b.work, nil), nil)
			require.NoError(t, p.Prestart())

			bg := context.Background()
			for i := range 5 {
				require.NoError(t, p.Submit(bg, i))
			}
			assert.Equal(t, 3, p.Live())
			close(b.release)

			require.Eventually(t, func() bool { return p.Live() == tt.floor },
				2*time.Second, 5*time.Millisecond)

			// a pool without live workers starts one on demand
			require.NoError(t, p.Submit(bg, 42))
			p.ShutdownAndWait()
			assert.Equal(t, int64(6), p.Stats().Completed)
		})
	}
}

func TestWorkerPanic(t *testing.T) {
	fn := func(_ context.Context, n int) error {
		if n == 3 {
			panic("bad item")
		}
		return nil
	}
	var failed []int
	var mu sync.Mutex
	onErr := func(n int, _ error) {
		mu.Lock()
		failed = append(failed, n)
		mu.Unlock()
	}

	p := workerpool.New(workerpool.Config{
		Name: "panic", MinThreads: 1, MaxThreads: 1, QueueCapacity: 5,
	}, factory(fn, nil), onErr)
	require.NoError(t, p.Prestart())
	for i := range 5 {
		require.NoError(t, p.Submit(context.Background(), i))
	}
	p.ShutdownAndWait()

	assert.Equal(t, []int{3}, failed)
	assert.Equal(t, int64(4), p.Stats().Completed)
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		msg     string
		st      workerpool.Strategy
		live    int
		backlog int
		grow    bool
	}{
		{"fixed never grows", workerpool.FixedStrategy{}, 1, 100, false},
		{"conservative below live", workerpool.NewStrategy("conservative"), 4, 3, false},
		{"conservative above live", workerpool.NewStrategy("conservative"), 2, 3, true},
		{"aggressive any backlog", workerpool.NewStrategy("aggressive"), 4, 1, true},
		{"aggressive empty queue", workerpool.NewStrategy("aggressive"), 4, 0, false},
		{"unknown is aggressive", workerpool.NewStrategy("eager"), 4, 1, true},
	}

	for _, v := range tests {
		res := v.st.Grow(v.live, 8, v.backlog)
		assert.Equal(t, v.grow, res, v.msg)
	}

	assert.Zero(t, workerpool.NewStrategy("fixed").IdleTimeout())
	assert.Less(t,
		workerpool.NewStrategy("conservative").IdleTimeout(),
		workerpool.NewStrategy("aggressive").IdleTimeout(),
	)
}
