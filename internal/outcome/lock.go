package outcome

import (
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// lockPollInterval is how often a waiting writer retries the sink lock.
const lockPollInterval = 10 * time.Millisecond

// LockPath returns the lock file guarding the outcome log at logPath.
func LockPath(logPath string) string {
	return logPath + ".lock"
}

// SinkLock serializes appends to one outcome log across processes. The
// watcher and a bulk replace may share a log.
type SinkLock struct {
	flock *flock.Flock
}

// NewSinkLock returns the lock for the log at logPath. Nothing is created
// until the lock is first taken.
func NewSinkLock(logPath string) *SinkLock {
	return &SinkLock{flock: flock.New(LockPath(logPath))}
}

// Acquire waits up to timeout for the lock.
func (l *SinkLock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", l.flock.Path(), err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock %s: still held after %s", l.flock.Path(), timeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// Release drops the lock.
func (l *SinkLock) Release() error {
	return l.flock.Unlock()
}

// Busy reports whether some other handle holds the lock right now. It never
// waits.
func (l *SinkLock) Busy() (bool, error) {
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", l.flock.Path(), err)
	}
	if !ok {
		return true, nil
	}
	return false, l.flock.Unlock()
}

// Path returns the lock file path.
func (l *SinkLock) Path() string {
	return l.flock.Path()
}
