// Package store defines the storage contracts consumed by tenant resolution
// and plan limit enforcement. Implementations live in the memory and
// postgres subpackages.
package store

import "errors"

// ErrUnavailable marks a failure talking to the backing store (connection
// loss, server shutdown, resource exhaustion). Callers may retry.
var ErrUnavailable = errors.New("store unavailable")
