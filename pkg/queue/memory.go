package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// MemoryQueue runs tasks in-process on a bounded goroutine pool. Tasks are
// lost on restart; the reaper fails their documents afterwards.
type MemoryQueue struct {
	tasks       chan *Task
	pool        *ants.Pool
	hardTimeout time.Duration
	logger      logger.Logger

	mu        sync.RWMutex
	statuses  map[string]*TaskStatus
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
	closed    bool
	started   bool

	wg   sync.WaitGroup
	done chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity, concurrency int, hardTimeout time.Duration, log logger.Logger) (*MemoryQueue, error) {
	pool, err := ants.NewPool(max(concurrency, 1))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &MemoryQueue{
		tasks:       make(chan *Task, max(capacity, 1)),
		pool:        pool,
		hardTimeout: hardTimeout,
		logger:      log.Named("memory-queue"),
		statuses:    make(map[string]*TaskStatus),
		retention:   statusRetention,
		now:         time.Now,
		done:        make(chan struct{}),
	}, nil
}

// Enqueue never blocks: a full buffer fails with ErrQueueFull.
func (q *MemoryQueue) Enqueue(_ context.Context, task *Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	q.pruneLocked()
	if _, ok := q.statuses[task.ID]; ok {
		return "", ErrDuplicateTask
	}
	select {
	case q.tasks <- task:
	default:
		return "", ErrQueueFull
	}
	q.statuses[task.ID] = &TaskStatus{TaskID: task.ID, Status: StatusQueued, UpdatedAt: q.now().UTC()}
	return task.ID, nil
}

// Start consumes tasks until ctx ends or the queue is closed. Each task
// runs on the pool under the hard timeout.
func (q *MemoryQueue) Start(ctx context.Context, handler Handler) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-q.tasks:
				if !ok {
					return
				}
				q.wg.Add(1)
				if err := q.pool.Submit(func() {
					defer q.wg.Done()
					q.run(ctx, handler, task)
				}); err != nil {
					q.wg.Done()
					q.logger.Error("Failed to schedule task", logger.JobID(task.ID), logger.Error(err))
				}
			}
		}
	}()
}

func (q *MemoryQueue) run(ctx context.Context, handler Handler, task *Task) {
	if q.hardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.hardTimeout)
		defer cancel()
	}
	if err := handler(ctx, task); err != nil {
		q.logger.Error("Task failed", logger.JobID(task.ID), logger.String("type", task.Type), logger.Error(err))
	}
}

func (q *MemoryQueue) GetTaskStatus(_ context.Context, taskID string) (*TaskStatus, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.statuses[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	c := *s
	return &c, nil
}

func (q *MemoryQueue) SaveStatus(_ context.Context, status *TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := *status
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = q.now().UTC()
	}
	q.statuses[status.TaskID] = &c
	q.pruneLocked()
	return nil
}

// pruneLocked drops finished statuses older than the retention window. It
// sweeps at most once a minute.
func (q *MemoryQueue) pruneLocked() {
	now := q.now()
	if now.Sub(q.lastPrune) < time.Minute {
		return
	}
	q.lastPrune = now
	for id, st := range q.statuses {
		if st.Status != StatusCompleted && st.Status != StatusFailed {
			continue
		}
		if now.Sub(st.UpdatedAt) > q.retention {
			delete(q.statuses, id)
		}
	}
}

// Close stops accepting tasks, drains the buffer and waits for running
// tasks to finish.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	started := q.started
	q.mu.Unlock()

	if started {
		<-q.done
	}
	q.wg.Wait()
	q.pool.Release()
	return nil
}
