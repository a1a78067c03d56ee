package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Local opens a file already resident on the serving host. The path must
// have passed the path-safety check before it reaches this point.
type Local struct {
	path     string
	maxBytes int64
}

func NewLocal(path string, maxBytes int64) *Local {
	return &Local{path: path, maxBytes: maxBytes}
}

func (l *Local) Fetch(_ context.Context) (*File, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, l.path)
		}
		return nil, fmt.Errorf("stat local file: %w", err)
	}

	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%w: exceeds maximum size of %dMB", ErrTooLarge, l.maxBytes/(1024*1024))
	}

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open local file: %w", err)
	}

	f := NewFile(file, filepath.Base(l.path))
	if err := checkSize(f, l.maxBytes); err != nil {
		_ = file.Close()
		return nil, err
	}

	return f, nil
}
