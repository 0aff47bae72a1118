//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package flock

// Lock is a no-op on platforms without flock(2).
type Lock struct{}

// Acquire returns a no-op lock.
func Acquire(path string) (*Lock, error) {
	return &Lock{}, nil
}

// TryAcquire returns a no-op lock.
func TryAcquire(path string) (*Lock, error) {
	return &Lock{}, nil
}

// Release does nothing.
func (l *Lock) Release() error {
	return nil
}
