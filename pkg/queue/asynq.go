package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

const defaultQueueName = "default"

// Config configures the redis-backed queue.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// HardTimeout bounds one task run; asynq cancels the handler context.
	HardTimeout time.Duration
	MaxRetries  int
}

// RedisOpt is the asynq connection option for cfg.
func (cfg *Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       Config
	logger    logger.Logger
}

var _ Queue = (*AsynqQueue)(nil)

func NewAsynqQueue(cfg *Config, log logger.Logger) (*AsynqQueue, error) {
	redisOpt := cfg.RedisOpt()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       *cfg,
		logger:    log.Named("queue"),
	}, nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) (string, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(defaultQueueName),
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Retention(statusRetention),
	}
	if q.cfg.HardTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.HardTimeout))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", ErrDuplicateTask
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := q.SaveStatus(ctx, &TaskStatus{TaskID: task.ID, Status: StatusQueued, UpdatedAt: time.Now().UTC()}); err != nil {
		q.logger.Warn("Failed to save queued status", logger.JobID(task.ID), logger.Error(err))
	}
	return info.ID, nil
}

// GetTaskStatus prefers the status mirrored by the worker and falls back to
// the task state asynq keeps.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, fmt.Sprintf(statusKeyPattern, taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	info, err := q.inspector.GetTaskInfo(defaultQueueName, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to inspect task: %w", err)
	}
	return convertAsynqStatus(info), nil
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, fmt.Sprintf(statusKeyPattern, status.TaskID), data, statusRetention).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{TaskID: info.ID, UpdatedAt: time.Now().UTC()}
	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = StatusQueued
	case asynq.TaskStateActive, asynq.TaskStateRetry:
		status.Status = StatusRunning
		status.Error = info.LastErr
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 100
		status.UpdatedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
	}
	return status
}
