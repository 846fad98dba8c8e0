package versions

import "fmt"

// VersionError reports an unparsable version range or an unsatisfiable
// combination of ranges.
type VersionError struct {
	Input  string
	Reason string
}

func (e *VersionError) Error() string {
	if e.Input == "" {
		return "version conflict: " + e.Reason
	}
	return fmt.Sprintf("invalid version range %q: %s", e.Input, e.Reason)
}

func rangeError(input, format string, args ...interface{}) error {
	return &VersionError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
