package furnace

import (
	"errors"
)

var (
	// ErrNotRunning is returned by operations that need a started container.
	ErrNotRunning = errors.New("furnace is not running")
	// ErrAddonNotFound is returned when a view does not contain an addon.
	ErrAddonNotFound = errors.New("addon not found")
	// ErrServiceNotFound is returned when no visible addon publishes a service.
	ErrServiceNotFound = errors.New("service not found")
)
