package furnace

import (
	"context"
	"sync"
	"sync/atomic"
)

// future tracks one start task. The task's context is cancelled by stopping
// the addon; done is closed once the task finished, after which err is set.
// Whoever claims the future first owns it: the worker running the task, or
// a stop that got to a task still queued in the pool.
type future struct {
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	claimed atomic.Bool
	err     error
}

func newFuture(cancel context.CancelFunc) *future {
	return &future{cancel: cancel, done: make(chan struct{})}
}

func (f *future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
		f.cancel()
	})
}

// claim reports whether the caller is the first to claim f.
func (f *future) claim() bool {
	return f.claimed.CompareAndSwap(false, true)
}

func (f *future) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// wait blocks until the task finished or ctx is done.
func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
