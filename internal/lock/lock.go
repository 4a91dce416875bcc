// Package lock keeps a single monitor running per configuration directory,
// so one state change is never posted twice.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Instance is an acquired process lock.
type Instance struct {
	fl *flock.Flock
}

// Acquire takes the lock at path without blocking. It fails if another
// process holds it.
func Acquire(path string) (*Instance, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another pvewatch instance holds %s", path)
	}
	return &Instance{fl: fl}, nil
}

func (i *Instance) Path() string { return i.fl.Path() }

func (i *Instance) Release() error {
	return i.fl.Unlock()
}
