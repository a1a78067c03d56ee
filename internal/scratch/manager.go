package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager allocates temporary files for staging and processing audio, and
// tracks every path it hands out. A tracked path is reclaimed either by an
// explicit Release or by the shutdown ReleaseAll sweep; nothing is orphaned.
//
// Removal is best effort: failures are logged and swallowed so cleanup can
// never mask the error that triggered it.
type Manager struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	files []string
	dirs  []string
}

// NewManager creates a Manager rooted at dir. An empty dir means the system
// temp directory.
func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{root: dir, logger: logger}
}

// Create allocates a uniquely named file path with the given suffix inside a
// fresh directory and registers both for tracking. The file itself is not
// created; callers write to the returned path.
func (m *Manager) Create(suffix string) (string, error) {
	dir, err := os.MkdirTemp(m.root, "scribed-")
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+suffix)

	m.mu.Lock()
	m.files = append(m.files, path)
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()

	m.logger.Debug("created scratch file", zap.String("path", path))
	return path, nil
}

// Release removes the given files and deregisters them. With no arguments it
// releases every tracked file. After removing a file its parent directory is
// removed too if empty.
func (m *Manager) Release(paths ...string) {
	if len(paths) == 0 {
		m.mu.Lock()
		paths = append(paths, m.files...)
		m.mu.Unlock()
	}

	for _, path := range paths {
		m.removeFile(path)
	}
}

// ReleaseAll removes every tracked file and sweeps any tracked directory that
// is left empty.
func (m *Manager) ReleaseAll() {
	m.Release()

	m.mu.Lock()
	dirs := m.dirs
	m.dirs = nil
	m.mu.Unlock()

	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("could not remove scratch directory", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// WithFile allocates one scratch file, runs fn with its path, and releases it
// on every exit path.
func (m *Manager) WithFile(suffix string, fn func(path string) error) error {
	path, err := m.Create(suffix)
	if err != nil {
		return err
	}
	defer m.Release(path)

	return fn(path)
}

// TrackedFiles returns a snapshot of the currently tracked file paths.
func (m *Manager) TrackedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.files))
	copy(out, m.files)
	return out
}

func (m *Manager) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("could not remove scratch file", zap.String("path", path), zap.Error(err))
	} else {
		m.logger.Debug("removed scratch file", zap.String("path", path))
	}

	dir := filepath.Dir(path)
	if err := os.Remove(dir); err == nil {
		m.deregisterDir(dir)
	}

	m.deregisterFile(path)
}

func (m *Manager) deregisterFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f == path {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return
		}
	}
}

func (m *Manager) deregisterDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.dirs {
		if d == dir {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return
		}
	}
}
