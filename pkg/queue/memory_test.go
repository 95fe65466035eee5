package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

func task(id string) *Task {
	return &Task{ID: id, Type: TaskTypeDocumentProcess, DocumentID: "doc-" + id, CreatedAt: time.Now()}
}

func TestMemoryQueueRunsEveryTaskOnce(t *testing.T) {
	q, err := NewMemoryQueue(64, 4, time.Minute, logger.NewNop())
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]int{}
	q.Start(context.Background(), func(_ context.Context, task *Task) error {
		mu.Lock()
		seen[task.ID]++
		mu.Unlock()
		return nil
	})

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		handle, err := q.Enqueue(context.Background(), task(id))
		require.NoError(t, err)
		assert.Equal(t, id, handle)
	}
	require.NoError(t, q.Close())

	for _, id := range ids {
		assert.Equal(t, 1, seen[id], id)
	}
	_, err = q.Enqueue(context.Background(), task("late"))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueueBoundsConcurrency(t *testing.T) {
	q, err := NewMemoryQueue(64, 2, time.Minute, logger.NewNop())
	require.NoError(t, err)

	var running, peak atomic.Int32
	q.Start(context.Background(), func(context.Context, *Task) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		_, err := q.Enqueue(context.Background(), task(id))
		require.NoError(t, err)
	}
	require.NoError(t, q.Close())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMemoryQueueFull(t *testing.T) {
	q, err := NewMemoryQueue(1, 1, time.Minute, logger.NewNop())
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Enqueue(context.Background(), task("a"))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), task("b"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryQueueHardTimeout(t *testing.T) {
	q, err := NewMemoryQueue(4, 1, 20*time.Millisecond, logger.NewNop())
	require.NoError(t, err)

	deadline := make(chan error, 1)
	q.Start(context.Background(), func(ctx context.Context, _ *Task) error {
		<-ctx.Done()
		deadline <- ctx.Err()
		return ctx.Err()
	})
	_, err = q.Enqueue(context.Background(), task("slow"))
	require.NoError(t, err)

	select {
	case err := <-deadline:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was never cancelled")
	}
	require.NoError(t, q.Close())
}

func TestMemoryQueueStatus(t *testing.T) {
	q, err := NewMemoryQueue(4, 1, 0, logger.NewNop())
	require.NoError(t, err)
	defer q.Close()
	ctx := context.Background()

	_, err = q.GetTaskStatus(ctx, "x")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = q.Enqueue(ctx, task("x"))
	require.NoError(t, err)
	st, err := q.GetTaskStatus(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, st.Status)

	require.NoError(t, q.SaveStatus(ctx, &TaskStatus{TaskID: "x", Status: StatusRunning, Progress: 40, Stage: "redaction"}))
	st, _ = q.GetTaskStatus(ctx, "x")
	assert.Equal(t, 40, st.Progress)
	st.Progress = 99
	again, _ := q.GetTaskStatus(ctx, "x")
	assert.Equal(t, 40, again.Progress)
}

func TestMemoryQueueRejectsDuplicateID(t *testing.T) {
	q, err := NewMemoryQueue(4, 1, 0, logger.NewNop())
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Enqueue(context.Background(), task("dup"))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), task("dup"))
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestMemoryQueuePrunesFinishedStatuses(t *testing.T) {
	q, err := NewMemoryQueue(8, 1, 0, logger.NewNop())
	require.NoError(t, err)
	defer q.Close()
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	for _, id := range []string{"done", "failed", "running"} {
		_, err := q.Enqueue(ctx, task(id))
		require.NoError(t, err)
	}
	require.NoError(t, q.SaveStatus(ctx, &TaskStatus{TaskID: "done", Status: StatusCompleted, Progress: 100, UpdatedAt: now}))
	require.NoError(t, q.SaveStatus(ctx, &TaskStatus{TaskID: "failed", Status: StatusFailed, UpdatedAt: now}))
	require.NoError(t, q.SaveStatus(ctx, &TaskStatus{TaskID: "running", Status: StatusRunning, Progress: 40, UpdatedAt: now}))

	now = now.Add(time.Hour)
	_, err = q.Enqueue(ctx, task("fresh"))
	require.NoError(t, err)
	_, err = q.GetTaskStatus(ctx, "done")
	require.NoError(t, err, "kept inside the retention window")

	now = now.Add(statusRetention)
	_, err = q.Enqueue(ctx, task("later"))
	require.NoError(t, err)

	for _, id := range []string{"done", "failed"} {
		_, err := q.GetTaskStatus(ctx, id)
		assert.ErrorIs(t, err, ErrTaskNotFound, id)
	}
	for _, id := range []string{"running", "fresh", "later"} {
		_, err := q.GetTaskStatus(ctx, id)
		assert.NoError(t, err, id)
	}
}
