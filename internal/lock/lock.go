// Package lock implements the container's global readers-writer lock.
//
// Graph updates run under the write lock while registry reads share the
// read lock. Holds are recorded in the context passed to the callback, so a
// callback may take the read lock again, or the read lock while holding the
// write lock, without blocking on itself. Asking for the write lock while
// holding only the read lock is always a bug and fails with a DeadlockError.
package lock

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/semaphore"
)

type mode int

const (
	unlocked mode = iota
	reading
	writing
)

func (m mode) String() string {
	switch m {
	case reading:
		return "read"
	case writing:
		return "write"
	default:
		return "none"
	}
}

// writerWeight is taken by a writer; every reader takes one unit.
const writerWeight = math.MaxInt32

type holdKey struct {
	m *Manager
}

// DeadlockError is returned when a holder of the read lock asks for the
// write lock.
type DeadlockError struct {
	Held      string
	Requested string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock: %s lock requested while holding the %s lock", e.Requested, e.Held)
}

// Manager is a fair readers-writer lock. Waiters are served in arrival
// order, so a waiting writer holds back readers that arrive after it.
type Manager struct {
	sem *semaphore.Weighted
}

// New creates an unlocked Manager.
func New() *Manager {
	return &Manager{sem: semaphore.NewWeighted(writerWeight)}
}

// PerformRead runs fn while holding the read lock.
func (m *Manager) PerformRead(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.perform(ctx, reading, fn)
}

// PerformWrite runs fn while holding the write lock.
func (m *Manager) PerformWrite(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.perform(ctx, writing, fn)
}

// Read runs fn under the read lock and returns its result.
func Read[T any](ctx context.Context, m *Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.PerformRead(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Write runs fn under the write lock and returns its result.
func Write[T any](ctx context.Context, m *Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.PerformWrite(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Held reports whether ctx carries a read or write hold of m.
func (m *Manager) Held(ctx context.Context) (read, write bool) {
	h := m.held(ctx)
	return h >= reading, h == writing
}

func (m *Manager) held(ctx context.Context) mode {
	if h, ok := ctx.Value(holdKey{m}).(mode); ok {
		return h
	}
	return unlocked
}

func (m *Manager) perform(ctx context.Context, want mode, fn func(ctx context.Context) error) error {
	held := m.held(ctx)
	if held == reading && want == writing {
		return &DeadlockError{Held: held.String(), Requested: want.String()}
	}
	if held >= want {
		return fn(ctx)
	}

	weight := int64(1)
	if want == writing {
		weight = writerWeight
	}
	if err := m.sem.Acquire(ctx, weight); err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", want, err)
	}
	defer m.sem.Release(weight)

	return fn(context.WithValue(ctx, holdKey{m}, want))
}
