package operations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
)

const lockPollDelay = 100 * time.Millisecond

// Releaser releases a held run lock.
type Releaser interface {
	Release()
}

// LockName derives the machine-wide mutex name for a backups directory.
// Mutex names are limited in length and alphabet, so the path is hashed.
func LockName(backupsRoot string) string {
	abs, err := filepath.Abs(backupsRoot)
	if err != nil {
		abs = filepath.Clean(backupsRoot)
	}
	sum := sha256.Sum256([]byte(abs))
	return "sitebackup-" + hex.EncodeToString(sum[:8])
}

// AcquireRunLock takes the lock guarding backupsRoot, waiting at most wait
// for a concurrent run to finish. It fails with ErrLocked otherwise.
func AcquireRunLock(backupsRoot string, wait time.Duration, cancel <-chan struct{}) (Releaser, error) {
	spec := mutex.Spec{
		Name:    LockName(backupsRoot),
		Clock:   clock.WallClock,
		Delay:   lockPollDelay,
		Timeout: wait,
		Cancel:  cancel,
	}
	releaser, err := mutex.Acquire(spec)
	switch {
	case err == nil:
		return releaser, nil
	case errors.Is(err, mutex.ErrTimeout):
		return nil, fmt.Errorf("%w: %s", ErrLocked, backupsRoot)
	case errors.Is(err, mutex.ErrCancelled):
		return nil, fmt.Errorf("acquire run lock for %s: %w", backupsRoot, context.Canceled)
	default:
		return nil, fmt.Errorf("acquire run lock for %s: %w", backupsRoot, err)
	}
}
