package writer

import (
	"errors"
	"fmt"
)

// ErrDuplicateNotification means a record with the same idempotency key
// already exists. Callers treat it as success.
var ErrDuplicateNotification = errors.New("duplicate notification")

// PersistenceFailure is any store failure other than a duplicate key.
type PersistenceFailure struct {
	Key string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persist notification %s: %v", e.Key, e.Err)
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}
