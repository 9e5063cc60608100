package queryflow

import (
	"errors"
	"fmt"
)

// ErrQueued is returned by Mutate when the network is offline and the
// mutation was parked on the offline queue instead of executed. The caller's
// OnQueued hook fires with the original variables; the mutation state stays
// idle until replay.
var ErrQueued = errors.New("queryflow: mutation queued for offline replay")

// ConfigurationError reports an invalid construction-time option.
// The engine fails fast on these rather than degrading at runtime.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("queryflow: invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErr(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}
