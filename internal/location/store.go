package location

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoRecord is returned by Load when no URL has been recorded for the service yet.
var ErrNoRecord = errors.New("no last known location recorded")

// Store keeps one plain-text record per service holding the last resolved artifact URL.
// Files are rewritten wholesale; there is no cross-process locking.
type Store struct {
	dir   string
	names map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithFileName overrides the record file name used for service.
func WithFileName(service, name string) Option {
	return func(s *Store) {
		if name != "" {
			s.names[service] = name
		}
	}
}

// NewStore returns a Store rooted at dir. Records default to
// last_backup_file_url_<service>.txt.
func NewStore(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = "."
	}
	s := &Store{dir: dir, names: map[string]string{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the record file for service.
func (s *Store) Path(service string) string {
	name, ok := s.names[service]
	if !ok {
		name = fmt.Sprintf("last_backup_file_url_%s.txt", service)
	}
	return filepath.Join(s.dir, name)
}

// Load reads the recorded URL for service.
func (s *Store) Load(service string) (string, error) {
	path := s.Path(service)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoRecord, path)
	}
	if err != nil {
		return "", fmt.Errorf("read record %s: %w", path, err)
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoRecord, path)
	}
	return url, nil
}

// Save replaces the record for service with url.
func (s *Store) Save(service, url string) error {
	path := s.Path(service)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create record directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".record-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.WriteString(url); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
