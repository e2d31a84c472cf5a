package watcher

import (
	"errors"
	"fmt"
)

// ErrResumeTokenExpired means the stored position is no longer retained by
// the store. The watcher cannot continue without skipping events, so it
// stops; an operator resets the checkpoint to start again from "now".
var ErrResumeTokenExpired = errors.New("resume token expired")

var errStreamEnded = errors.New("change stream ended")

// TransientSubscriptionError is a subscription failure the watcher
// recovers from by resubscribing after a backoff.
type TransientSubscriptionError struct {
	Err error
}

func (e *TransientSubscriptionError) Error() string {
	return fmt.Sprintf("transient subscription error: %v", e.Err)
}

func (e *TransientSubscriptionError) Unwrap() error {
	return e.Err
}

func expired(err error) error {
	return fmt.Errorf("%w: %w", ErrResumeTokenExpired, err)
}
