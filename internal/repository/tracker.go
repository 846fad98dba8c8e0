// Package repository provides addon repositories: an in-memory one for
// embedding and tests, and a directory-backed one persisted as YAML.
package repository

import "sync/atomic"

// changeTracker implements the version counter and dirty flag shared by all
// repositories.
type changeTracker struct {
	version atomic.Int64
	dirty   atomic.Bool
}

func (c *changeTracker) markChanged() {
	c.version.Add(1)
	c.dirty.Store(true)
}

// Version returns the change counter.
func (c *changeTracker) Version() int64 {
	return c.version.Load()
}

// IsDirty reports whether the repository changed since the last reset.
func (c *changeTracker) IsDirty() bool {
	return c.dirty.Load()
}

// ResetDirtyStatus clears the dirty flag.
func (c *changeTracker) ResetDirtyStatus() {
	c.dirty.Store(false)
}
