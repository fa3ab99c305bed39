package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeChanged means the type read inside the transaction differs from
	// the probe, so the value was fetched with the wrong command.
	ErrTypeChanged = errors.New("type changed during snapshot")
	// ErrWatchAborted means another client modified the key between WATCH
	// and EXEC.
	ErrWatchAborted = errors.New("watched key modified during snapshot")
	// ErrKeyNotFound means the key expired or was deleted after enumeration.
	ErrKeyNotFound = errors.New("key not found")
)

// KeyError is a failure confined to one key. Errors that are not a
// KeyError (transport, context) end the run whatever the policy.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key %q: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	return errors.Is(err, ErrTypeChanged) || errors.Is(err, ErrWatchAborted)
}
