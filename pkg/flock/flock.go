// Package flock serializes hook invocations on one host with an exclusive file lock.
package flock

import "errors"

// ErrLocked is returned by TryAcquire when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")
