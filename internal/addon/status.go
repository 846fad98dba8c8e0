package addon

// Status is the runtime state of an addon.
type Status int

const (
	// StatusMissing means no code unit is attached.
	StatusMissing Status = iota
	// StatusLoaded means the code unit is attached and start is pending.
	StatusLoaded
	// StatusStarted means the startup hook completed.
	StatusStarted
	// StatusFailed means loading or starting failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "MISSING"
	case StatusLoaded:
		return "LOADED"
	case StatusStarted:
		return "STARTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsLoaded reports whether a code unit is attached and usable.
func (s Status) IsLoaded() bool {
	return s == StatusLoaded || s == StatusStarted
}

// Statuses lists all statuses in lifecycle order.
var Statuses = []Status{StatusMissing, StatusLoaded, StatusStarted, StatusFailed}
