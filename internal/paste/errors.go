package paste

import (
	"fmt"

	"pastebin-lite/internal/storage"
)

// ErrUnavailable is returned by Retrieve for a missing, expired or exhausted
// paste. The three cases are deliberately indistinguishable to callers.
var ErrUnavailable = storage.ErrUnavailable

// ValidationError reports creation input that breaks a constraint. No store
// interaction happens when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// StoreError wraps an infrastructure failure from the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s paste: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
