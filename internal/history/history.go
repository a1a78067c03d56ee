// Package history appends finished transcriptions to a JSONL log, one file
// per day. History is best effort; write failures are logged, never fatal.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Entry struct {
	Timestamp       time.Time `json:"timestamp"`
	FileName        string    `json:"file_name"`
	Text            string    `json:"text"`
	DurationSeconds float64   `json:"duration_seconds"`
	ProcessingTime  float64   `json:"processing_time"`
	Model           string    `json:"model"`
}

type Log struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewLog returns a history log writing under dir. An empty dir disables
// history entirely.
func NewLog(dir string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{dir: dir, logger: logger, now: time.Now}
}

func (l *Log) Enabled() bool {
	return l.dir != ""
}

// Append records one transcription. Errors are swallowed after logging so a
// full disk never fails a request that already succeeded.
func (l *Log) Append(entry Entry) {
	if !l.Enabled() {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("could not encode history entry", zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.logger.Warn("could not create history directory", zap.String("dir", l.dir), zap.Error(err))
		return
	}

	path := filepath.Join(l.dir, fmt.Sprintf("transcriptions-%s.jsonl", entry.Timestamp.Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("could not open history file", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("could not append history entry", zap.String("path", path), zap.Error(err))
	}
}
