// Package source abstracts the channels audio can arrive through: multipart
// uploads, remote URLs, base64 payloads, and server-local paths. Every
// variant yields the same readable file handle after enforcing the configured
// byte ceiling.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrMissingPart   = errors.New("no file part in request")
	ErrEmptyFilename = errors.New("no file selected")
	ErrTooLarge      = errors.New("file too large")
	ErrFetch         = errors.New("could not fetch remote file")
	ErrDecode        = errors.New("could not decode payload")
	ErrNotFound      = errors.New("file not found")
)

// Source yields an audio file handle from one input channel.
type Source interface {
	Fetch(ctx context.Context) (*File, error)
}

// Cleaner is implemented by sources that own scratch resources (remote and
// inline variants) which must be reclaimed once staging is complete.
type Cleaner interface {
	Cleanup()
}

// File is a readable, seekable audio handle with a display name.
type File struct {
	rs   io.ReadSeeker
	name string
}

func NewFile(rs io.ReadSeeker, name string) *File {
	return &File{rs: rs, name: name}
}

func (f *File) Name() string { return f.name }

func (f *File) Read(p []byte) (int, error) { return f.rs.Read(p) }

func (f *File) Seek(offset int64, whence int) (int64, error) { return f.rs.Seek(offset, whence) }

// Close closes the underlying reader when it is closable.
func (f *File) Close() error {
	if c, ok := f.rs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Size reports the stream length without disturbing the read position.
func (f *File) Size() (int64, error) {
	pos, err := f.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("size check: %w", err)
	}

	end, err := f.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("size check: %w", err)
	}

	if _, err := f.rs.Seek(pos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("size check rewind: %w", err)
	}

	return end, nil
}

// SaveTo writes the full stream to the given path and rewinds afterwards.
func (f *File) SaveTo(path string) error {
	if _, err := f.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind before save: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, f.rs); err != nil {
		return fmt.Errorf("stage audio: %w", err)
	}

	if _, err := f.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind after save: %w", err)
	}

	return out.Sync()
}

// checkSize enforces the byte ceiling shared by all source variants.
func checkSize(f *File, maxBytes int64) error {
	size, err := f.Size()
	if err != nil {
		return err
	}
	if size > maxBytes {
		return fmt.Errorf("%w: exceeds maximum size of %dMB", ErrTooLarge, maxBytes/(1024*1024))
	}
	return nil
}
