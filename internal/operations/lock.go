package operations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/kebairia/cloudbak/internal/export"
)

// ErrRunInProgress means another process is already backing up the same service.
var ErrRunInProgress = errors.New("another run holds the lock for this service")

// acquireLock takes <dir>/<service>.lock without waiting.
func acquireLock(dir string, service export.Service) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %q: %w", dir, err)
	}
	fl := flock.New(filepath.Join(dir, string(service)+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, fl.Path())
	}
	return fl, nil
}
