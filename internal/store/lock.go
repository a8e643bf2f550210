package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rserrors "github.com/Aman-CERP/rdfsearch/internal/errors"
)

// dirLock guards an on-disk index against a second writer process.
// The lock file lives next to the index directory because bleve refuses to
// create an index in a non-empty directory.
type dirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newDirLock(indexPath string) *dirLock {
	lockPath := filepath.Clean(indexPath) + ".lock"
	return &dirLock{path: lockPath, flock: flock.New(lockPath)}
}

// acquire tries the lock, retrying with backoff while another process holds it.
func (l *dirLock) acquire(ctx context.Context, cfg rserrors.RetryConfig) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return rserrors.New(rserrors.ErrCodeStoreFailed, "failed to create lock directory", err)
	}
	return rserrors.Retry(ctx, cfg, func() error {
		ok, err := l.flock.TryLock()
		if err != nil {
			return rserrors.New(rserrors.ErrCodeStoreFailed, "failed to acquire index lock", err)
		}
		if !ok {
			return rserrors.New(rserrors.ErrCodeIndexLocked,
				fmt.Sprintf("index is locked by another process (%s)", l.path), nil).
				WithSuggestion("Stop the other rdfsearch process or wait for it to finish")
		}
		l.locked = true
		return nil
	})
}

// release is safe to call on an unlocked lock.
func (l *dirLock) release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
