package ledger

import (
	"errors"
	"fmt"
)

// LedgerError represents corrupt or unreadable checkpoint storage.
// Fatal: the pipeline aborts rather than silently re-running already
// completed expensive work.
type LedgerError struct {
	Op  string // "open", "load", "record"
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// IsLedgerError reports whether err is (or wraps) a LedgerError.
func IsLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}
