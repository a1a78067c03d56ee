package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote downloads the audio file from a URL into a private scratch
// directory. Cleanup removes that directory; it must be called once the
// bytes have been staged elsewhere.
type Remote struct {
	url      string
	maxBytes int64
	client   *http.Client
	logger   *zap.Logger

	tempDir  string
	tempFile string
}

func NewRemote(url string, maxBytes int64, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		url:      url,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: 10 * time.Minute},
		logger:   logger,
	}
}

// SetClient overrides the HTTP client, for tests.
func (r *Remote) SetClient(c *http.Client) { r.client = c }

func (r *Remote) Fetch(ctx context.Context) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", "scribed/1")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	// Short-circuit oversize transfers before writing anything.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if length, parseErr := strconv.ParseInt(cl, 10, 64); parseErr == nil && length > r.maxBytes {
			return nil, fmt.Errorf("%w: exceeds maximum size of %dMB", ErrTooLarge, r.maxBytes/(1024*1024))
		}
	}

	dir, err := os.MkdirTemp("", "scribed-remote-")
	if err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	r.tempDir = dir
	r.tempFile = filepath.Join(dir, uuid.NewString()+remoteExt(r.url))

	out, err := os.Create(r.tempFile)
	if err != nil {
		r.Cleanup()
		return nil, fmt.Errorf("create download file: %w", err)
	}

	// Cap the copy one byte past the ceiling so a lying or absent
	// Content-Length still cannot fill the disk.
	_, err = io.Copy(out, io.LimitReader(resp.Body, r.maxBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		r.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	file, err := os.Open(r.tempFile)
	if err != nil {
		r.Cleanup()
		return nil, fmt.Errorf("open downloaded file: %w", err)
	}

	f := NewFile(file, filepath.Base(r.tempFile))
	if err := checkSize(f, r.maxBytes); err != nil {
		_ = file.Close()
		r.Cleanup()
		return nil, err
	}

	return f, nil
}

// Cleanup removes the private download directory. Safe to call more than
// once and before Fetch.
func (r *Remote) Cleanup() {
	if r.tempDir == "" {
		return
	}
	if err := os.RemoveAll(r.tempDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("could not remove download directory", zap.String("dir", r.tempDir), zap.Error(err))
	}
	r.tempDir = ""
	r.tempFile = ""
}

func remoteExt(rawURL string) string {
	ext := strings.ToLower(path.Ext(rawURL))
	if ext == "" || len(ext) > 6 {
		return ".wav"
	}
	return ext
}
