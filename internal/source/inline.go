package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inline decodes a base64 payload carried inside the request body into a
// private scratch directory. Same cleanup contract as Remote.
type Inline struct {
	data     string
	maxBytes int64
	logger   *zap.Logger

	tempDir string
}

func NewInline(data string, maxBytes int64, logger *zap.Logger) *Inline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inline{data: data, maxBytes: maxBytes, logger: logger}
}

func (i *Inline) Fetch(_ context.Context) (*File, error) {
	// The encoded length bounds the decoded length, so an oversize payload
	// can be rejected before decoding.
	if int64(base64.StdEncoding.DecodedLen(len(i.data))) > i.maxBytes+2 {
		return nil, fmt.Errorf("%w: exceeds maximum size of %dMB", ErrTooLarge, i.maxBytes/(1024*1024))
	}

	decoded, err := base64.StdEncoding.DecodeString(i.data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if int64(len(decoded)) > i.maxBytes {
		return nil, fmt.Errorf("%w: exceeds maximum size of %dMB", ErrTooLarge, i.maxBytes/(1024*1024))
	}

	dir, err := os.MkdirTemp("", "scribed-inline-")
	if err != nil {
		return nil, fmt.Errorf("create payload directory: %w", err)
	}
	i.tempDir = dir

	path := filepath.Join(dir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, decoded, 0o600); err != nil {
		i.Cleanup()
		return nil, fmt.Errorf("write payload: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		i.Cleanup()
		return nil, fmt.Errorf("open payload: %w", err)
	}

	return NewFile(file, filepath.Base(path)), nil
}

// Cleanup removes the private payload directory.
func (i *Inline) Cleanup() {
	if i.tempDir == "" {
		return
	}
	if err := os.RemoveAll(i.tempDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		i.logger.Warn("could not remove payload directory", zap.String("dir", i.tempDir), zap.Error(err))
	}
	i.tempDir = ""
}
