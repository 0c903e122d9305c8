// Package lock provides per-key mutual exclusion for queue scopes.
package lock

import "errors"

// ErrTimeout is returned when a key stays held for longer than the wait.
var ErrTimeout = errors.New("lock: wait timed out")
