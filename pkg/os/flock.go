package os

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 10 * time.Millisecond

type Flock struct {
	f *flock.Flock
}

// NewFileLock makes an inter-process lock backed by the file at path.
func NewFileLock(path string) (*Flock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "opencloud.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &Flock{f: flock.New(path)}, nil
}

func (f *Flock) Lock() error   { return f.f.Lock() }
func (f *Flock) RLock() error  { return f.f.RLock() }
func (f *Flock) Unlock() error { return f.f.Unlock() }

// TryLockFor tries to get the exclusive lock during d.
func (f *Flock) TryLockFor(d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	for {
		ok, err := f.f.TryLock()
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(lockRetry)
	}
}
