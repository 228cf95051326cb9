// Package retention decides which block-storage records are eligible
// for deletion. Everything here is pure: no clocks, no I/O, no logging.
package retention

import (
	"fmt"
	"time"

	"github.com/yairfalse/siivo/types"
)

// ParseError means a record's age could not be evaluated because
// neither timestamp field was present or parseable
type ParseError struct {
	ResourceID string
	Value      string
	Err        error
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("record %s has no creation timestamp", e.ResourceID)
	}
	return fmt.Sprintf("record %s has unparseable timestamp %q: %v", e.ResourceID, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Age returns elapsed time since the record's effective creation
// instant, truncated to whole seconds. The effective timestamp is
// CreatedAt when present, else UpdatedAt; some provider API versions
// omit CreatedAt entirely.
func Age(rec types.Record, now time.Time) (time.Duration, error) {
	value := rec.CreatedAt
	if value == "" {
		value = rec.UpdatedAt
	}
	if value == "" {
		return 0, &ParseError{ResourceID: rec.ID}
	}

	created, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, &ParseError{ResourceID: rec.ID, Value: value, Err: err}
	}

	return now.Sub(created).Truncate(time.Second), nil
}
