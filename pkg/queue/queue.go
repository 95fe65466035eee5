// Package queue hands document jobs from the ingestion path to workers.
package queue

import (
	"context"
	"errors"
	"time"
)

const (
	TaskTypeDocumentProcess = "document:process"
	TaskTypeDocumentReap    = "document:reap"
)

const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	statusRetention  = 24 * time.Hour
	statusKeyPattern = "task_status:%s"
)

var (
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueClosed  = errors.New("queue is closed")
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when a task with the same ID is already queued.
	ErrDuplicateTask = errors.New("task already enqueued")
)

// Queue enqueues document jobs and tracks their advisory status.
type Queue interface {
	// Enqueue schedules task and returns the backend's handle for it.
	Enqueue(ctx context.Context, task *Task) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	SaveStatus(ctx context.Context, status *TaskStatus) error
	Close() error
}

// Handler runs one task.
type Handler func(ctx context.Context, task *Task) error

// Task identifies the job to run; the job record holds everything else.
type Task struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskStatus is the progress mirror polled by clients. It is advisory;
// the document record is authoritative.
type TaskStatus struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
