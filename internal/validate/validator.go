// Package validate gates incoming audio against the configured size,
// extension, and content-type policy before any processing begins.
package validate

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/scribeaudio/scribed/internal/source"
)

var (
	ErrExtension     = errors.New("file extension not allowed")
	ErrContentType   = errors.New("file content type not allowed")
	ErrPathTraversal = errors.New("file path is not within allowed directories")
)

const sniffLen = 1024

// Policy is an immutable validation configuration snapshot.
type Policy struct {
	MaxFileSizeMB     int
	AllowedExtensions []string
	AllowedMIMETypes  []string
}

type Validator struct {
	policy Policy
	logger *zap.Logger
}

func New(policy Policy, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{policy: policy, logger: logger}
}

// Validate runs the size, extension, and content-type checks in order,
// stopping at the first failure. An inconclusive sniff is logged and treated
// as non-blocking.
func (v *Validator) Validate(f *source.File) error {
	if err := v.checkSize(f); err != nil {
		return err
	}
	if err := v.checkExtension(f.Name()); err != nil {
		return err
	}
	return v.checkContentType(f)
}

func (v *Validator) checkSize(f *source.File) error {
	size, err := f.Size()
	if err != nil {
		return err
	}

	maxBytes := int64(v.policy.MaxFileSizeMB) * 1024 * 1024
	if size > maxBytes {
		v.logger.Warn("rejected oversize file",
			zap.String("name", f.Name()),
			zap.Int64("size", size),
			zap.Int("max_mb", v.policy.MaxFileSizeMB))
		return fmt.Errorf("%w: %.2fMB exceeds maximum of %dMB",
			source.ErrTooLarge, float64(size)/(1024*1024), v.policy.MaxFileSizeMB)
	}

	return nil
}

func (v *Validator) checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range v.policy.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}

	v.logger.Warn("rejected file extension",
		zap.String("name", name),
		zap.Strings("allowed", v.policy.AllowedExtensions))
	return fmt.Errorf("%w: %q (allowed: %s)", ErrExtension, ext, strings.Join(v.policy.AllowedExtensions, ", "))
}

func (v *Validator) checkContentType(f *source.File) error {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		v.logger.Warn("could not sniff content type", zap.Error(err))
		return nil
	}

	header := make([]byte, sniffLen)
	n, readErr := io.ReadFull(f, header)
	if _, seekErr := f.Seek(pos, io.SeekStart); seekErr != nil {
		return fmt.Errorf("restore position after sniff: %w", seekErr)
	}
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		v.logger.Warn("could not sniff content type", zap.Error(readErr))
		return nil
	}

	detected := mimetype.Detect(header[:n])
	for _, allowed := range v.policy.AllowedMIMETypes {
		if detected.Is(allowed) {
			return nil
		}
	}

	v.logger.Warn("rejected file content type",
		zap.String("name", f.Name()),
		zap.String("detected", detected.String()),
		zap.Strings("allowed", v.policy.AllowedMIMETypes))
	return fmt.Errorf("%w: %s (allowed: %s)", ErrContentType, detected.String(), strings.Join(v.policy.AllowedMIMETypes, ", "))
}

// LocalPath resolves a server-local path against an allow-list of root
// directories. The comparison uses resolved absolute paths, never string
// prefixes of raw input, so ".." segments cannot escape a root. It fails
// closed when no root is an ancestor of the resolved path.
func LocalPath(path string, allowedRoots []string) (string, error) {
	for _, root := range allowedRoots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootAbs = filepath.Clean(rootAbs)

		var candidate string
		if filepath.IsAbs(path) {
			candidate = filepath.Clean(path)
		} else {
			candidate = filepath.Join(rootAbs, path)
		}

		rel, err := filepath.Rel(rootAbs, candidate)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		return candidate, nil
	}

	return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
}
