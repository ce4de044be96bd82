// Package concurrent runs jobs on a bounded set of goroutines.
package concurrent

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Workers applies fn to submitted jobs on a fixed number of goroutines.
// Results are buffered until Drain is called, so the submitting goroutine
// never waits on a worker.
type Workers[T, R any] struct {
	fn     func(T) R
	jobs   chan T
	group  *errgroup.Group
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once

	mu      sync.Mutex
	results []R
}

// NewWorkers starts n goroutines. queue bounds how many submitted jobs may
// wait for a free worker.
func NewWorkers[T, R any](n, queue int, fn func(T) R) *Workers[T, R] {
	n = max(n, 1)
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	w := &Workers[T, R]{
		fn:     fn,
		jobs:   make(chan T, max(queue, 0)),
		group:  group,
		cancel: cancel,
	}
	for range n {
		group.Go(func() error {
			w.work(ctx)
			return nil
		})
	}
	return w
}

func (w *Workers[T, R]) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			r := w.fn(job)
			w.mu.Lock()
			w.results = append(w.results, r)
			w.mu.Unlock()
		}
	}
}

// Submit queues job. It reports false without blocking when the queue is
// full or the pool is closed.
func (w *Workers[T, R]) Submit(job T) (ok bool) {
	if w.closed.Load() {
		return false
	}
	defer func() {
		// send on a channel closed by a concurrent Close
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Drain returns every result produced since the previous call.
func (w *Workers[T, R]) Drain() []R {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.results
	w.results = nil
	return out
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// workers to exit.
func (w *Workers[T, R]) Close() {
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.jobs)
		_ = w.group.Wait()
		w.cancel()
	})
}
