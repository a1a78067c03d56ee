package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, tr *Tracker, id string, want Status) Task {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		snapshot, err := tr.Status(id)
		require.NoError(t, err)
		if snapshot.Status == want {
			return snapshot
		}

		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s, last seen %s", id, want, snapshot.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitCompletes(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)
	id := tr.Submit(func(ctx context.Context) (any, error) {
		return map[string]string{"text": "hello"}, nil
	})
	require.NotEmpty(t, id)

	snapshot := waitForStatus(t, tr, id, StatusCompleted)
	require.Equal(t, map[string]string{"text": "hello"}, snapshot.Result)
	require.Empty(t, snapshot.Error)
	require.False(t, snapshot.CompletedAt.IsZero())
}

func TestSubmitFails(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)
	id := tr.Submit(func(ctx context.Context) (any, error) {
		return nil, errors.New("conversion blew up")
	})

	snapshot := waitForStatus(t, tr, id, StatusFailed)
	require.Equal(t, "conversion blew up", snapshot.Error)
	require.Nil(t, snapshot.Result)
}

func TestSubmitPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)
	id := tr.Submit(func(ctx context.Context) (any, error) {
		panic("boom")
	})

	snapshot := waitForStatus(t, tr, id, StatusFailed)
	require.Contains(t, snapshot.Error, "boom")
}

func TestStatusUnknownTask(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)
	_, err := tr.Status("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepRemovesOnlyFinished(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)

	done := tr.Submit(func(ctx context.Context) (any, error) { return "ok", nil })
	waitForStatus(t, tr, done, StatusCompleted)

	block := make(chan struct{})
	running := tr.Submit(func(ctx context.Context) (any, error) {
		<-block
		return "ok", nil
	})
	waitForStatus(t, tr, running, StatusRunning)

	removed := tr.Sweep(0)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, tr.Len())

	_, err := tr.Status(done)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Status(running)
	require.NoError(t, err)

	close(block)
	waitForStatus(t, tr, running, StatusCompleted)
}

func TestSweepKeepsRecentlyFinished(t *testing.T) {
	t.Parallel()

	tr := NewTracker(context.Background(), nil)
	id := tr.Submit(func(ctx context.Context) (any, error) { return "ok", nil })
	waitForStatus(t, tr, id, StatusCompleted)

	require.Zero(t, tr.Sweep(time.Hour))
	require.Equal(t, 1, tr.Len())
}
