package models

import (
	"fmt"
	"time"
)

// Stage names a pipeline step.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageExtraction     Stage = "extraction"
	StageRedaction      Stage = "redaction"
	StageEmbedding      Stage = "embedding"
	StageClassification Stage = "classification"
	StageCommit         Stage = "commit"
	StageDone           Stage = "done"
)

// StageError is the tagged failure a stage hands back to the orchestrator.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Checkpoint is one advisory progress mark.
type Checkpoint struct {
	Stage    Stage     `json:"stage"`
	Progress int       `json:"progress"`
	At       time.Time `json:"at"`
}

// Job tracks one unit of asynchronous work for a document.
type Job struct {
	ID          string       `json:"id"`
	DocumentID  string       `json:"document_id"`
	OwnerID     string       `json:"owner_id"`
	TaskHandle  string       `json:"task_handle,omitempty"`
	Stage       Stage        `json:"stage"`
	Progress    int          `json:"progress"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
	ClaimedBy   string       `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time   `json:"claimed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Checkpoint records progress, keeping the percentage monotonic.
func (j *Job) Checkpoint(stage Stage, progress int, at time.Time) {
	if progress < j.Progress {
		progress = j.Progress
	}
	if progress > 100 {
		progress = 100
	}
	j.Stage = stage
	j.Progress = progress
	j.Checkpoints = append(j.Checkpoints, Checkpoint{Stage: stage, Progress: progress, At: at})
	j.UpdatedAt = at
}

// JobStatus is the answer to a status query on a job handle.
type JobStatus struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	State      Status `json:"state"`
	Progress   int    `json:"progress"`
	Stage      Stage  `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
}
