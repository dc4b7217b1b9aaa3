package lock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("another run holds the lock")

// Lock is an exclusive advisory file lock shared by every process using the
// same path.
type Lock struct {
	flock *flock.Flock
}

// Acquire takes the lock without waiting. It fails with ErrLocked when another
// holder already has it.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", path, ErrLocked)
	}
	return &Lock{flock: fl}, nil
}

func (l *Lock) Release() error {
	return l.flock.Unlock()
}
