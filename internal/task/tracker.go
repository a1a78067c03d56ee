// Package task tracks asynchronous transcription jobs by id.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("task not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Task struct {
	ID          string
	Status      Status
	Result      any
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Tracker runs submitted jobs on their own goroutines and keeps their state
// until swept. The context passed to NewTracker bounds every job.
type Tracker struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	ctx    context.Context
	logger *zap.Logger
}

func NewTracker(ctx context.Context, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		logger: logger,
	}
}

// Submit registers a new task and starts fn on its own goroutine, returning
// the task id immediately. A panicking fn marks the task failed instead of
// crashing the process.
func (tr *Tracker) Submit(fn func(ctx context.Context) (any, error)) string {
	id := uuid.NewString()

	tr.mu.Lock()
	tr.tasks[id] = &Task{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	tr.mu.Unlock()

	go tr.run(id, fn)

	return id
}

func (tr *Tracker) run(id string, fn func(ctx context.Context) (any, error)) {
	tr.mu.Lock()
	t := tr.tasks[id]
	if t == nil {
		tr.mu.Unlock()
		return
	}
	t.Status = StatusRunning
	t.StartedAt = time.Now()
	tr.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			tr.logger.Error("task panicked", zap.String("task_id", id), zap.Any("panic", r))
			tr.finish(id, nil, fmt.Errorf("task panicked: %v", r))
		}
	}()

	result, err := fn(tr.ctx)
	tr.finish(id, result, err)
}

func (tr *Tracker) finish(id string, result any, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := tr.tasks[id]
	if t == nil {
		return
	}

	t.CompletedAt = time.Now()
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		tr.logger.Warn("task failed", zap.String("task_id", id), zap.Error(err))
		return
	}

	t.Status = StatusCompleted
	t.Result = result
}

// Status returns a snapshot of the task.
func (tr *Tracker) Status(id string) (Task, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return *t, nil
}

// Sweep drops finished tasks older than maxAge and returns how many were
// removed. Pending and running tasks are never swept.
func (tr *Tracker) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	tr.mu.Lock()
	defer tr.mu.Unlock()

	removed := 0
	for id, t := range tr.tasks {
		if t.Status != StatusCompleted && t.Status != StatusFailed {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(tr.tasks, id)
			removed++
		}
	}

	return removed
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (tr *Tracker) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := tr.Sweep(maxAge); removed > 0 {
				tr.logger.Debug("swept finished tasks", zap.Int("removed", removed))
			}
		}
	}
}

func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.tasks)
}
