package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/feichai0017/document-intelligence/internal/agent/classification"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction"
	"github.com/feichai0017/document-intelligence/internal/agent/redaction"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
	"github.com/feichai0017/document-intelligence/pkg/storage"
)

// Progress marks published while a job runs.
const (
	progressStarted    = 0
	progressExtracted  = 20
	progressRedacted   = 40
	progressEmbedded   = 60
	progressClassified = 80
	progressDone       = 100
)

// StatusRecorder mirrors job progress somewhere clients can poll.
type StatusRecorder interface {
	SaveStatus(ctx context.Context, status *queue.TaskStatus) error
}

// Orchestrator runs the pipeline for one job at a time and owns the
// document record while it does.
type Orchestrator struct {
	repo      repository.Repository
	files     storage.Storage
	stages    Stages
	status    StatusRecorder
	workerID  string
	softLimit time.Duration
	now       func() time.Time
	logger    logger.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithWorkerID names the claimant written on jobs. It defaults to
// hostname and pid.
func WithWorkerID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		if id != "" {
			o.workerID = id
		}
	}
}

// WithSoftTimeLimit bounds the stages of one job. The commit is not
// covered by it.
func WithSoftTimeLimit(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.softLimit = d
	}
}

func WithStatusRecorder(r StatusRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.status = r
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(repo repository.Repository, files storage.Storage, stages Stages, log logger.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	o := &Orchestrator{
		repo:      repo,
		files:     files,
		stages:    stages,
		workerID:  fmt.Sprintf("%s-%d", host, os.Getpid()),
		softLimit: 25 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// outcome is everything a successful run commits.
type outcome struct {
	extracted  extraction.Result
	redacted   redaction.Result
	vector     []float32
	suggestion classification.Suggestion
}

// Process claims the job and drives its document to a terminal status.
// Pipeline failures are recorded on the document and return nil; an
// error means the store could not be reached and the job may be retried.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	job, err := o.repo.ClaimJob(ctx, jobID, o.workerID, o.now())
	if errors.Is(err, repository.ErrJobClaimed) {
		o.logger.Info("Job claimed by another worker, skipping", logger.JobID(jobID))
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		o.logger.Warn("Job no longer exists", logger.JobID(jobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	log := o.logger.With(logger.JobID(job.ID), logger.DocumentID(job.DocumentID))

	doc, err := o.repo.GetDocument(ctx, job.DocumentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Document deleted before processing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", job.DocumentID, err)
	}
	if doc.Status != models.StatusProcessing {
		log.Info("Document not in processing, skipping", logger.String("status", string(doc.Status)))
		return nil
	}

	start := o.now()
	log.Info("Processing started", logger.String("worker", o.workerID))
	o.checkpoint(ctx, job, models.StageExtraction, progressStarted, queue.StatusRunning, "")

	stageCtx := ctx
	if o.softLimit > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.softLimit)
		defer cancel()
	}

	out, err := o.run(stageCtx, job, doc, log)
	if err != nil {
		return o.fail(ctx, job, doc.ID, err, log)
	}

	at := o.now()
	o.checkpoint(ctx, job, models.StageCommit, progressClassified, queue.StatusRunning, "")
	committed, err := o.repo.TransitionStatus(ctx, doc.ID, models.StatusProcessing, models.StatusCompleted, func(d *models.Document) {
		applyOutcome(d, out, at)
	})
	if err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.ID, err)
	}
	if !committed {
		// The reaper got there first; its verdict stands.
		log.Warn("Document left processing before commit, result discarded")
		return nil
	}

	o.checkpoint(ctx, job, models.StageDone, progressDone, queue.StatusCompleted, "")
	log.Info("Processing completed",
		logger.Duration("elapsed", o.now().Sub(start)),
		logger.String("method", string(out.extracted.Method)),
		logger.Int("entities", out.redacted.EntitiesFound),
		logger.Strings("tags", out.suggestion.Tags),
	)
	return nil
}

// run executes the stages in order. A panic in any stage becomes a
// failure of that stage.
func (o *Orchestrator) run(ctx context.Context, job *models.Job, doc *models.Document, log logger.Logger) (out outcome, err error) {
	stage := models.StageExtraction
	defer func() {
		if r := recover(); r != nil {
			log.Error("Stage panicked", logger.Stage(string(stage)), logger.Any("panic", r), logger.Stack())
			err = &models.StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, err := storage.ReadAll(ctx, o.files, doc.FileKey)
	if err != nil {
		return out, &models.StageError{Stage: stage, Err: fmt.Errorf("failed to read raw file: %w", err)}
	}
	out.extracted = o.stages.Extractor.Extract(ctx, bytes.NewReader(data), int64(len(data)), doc.MediaKind)
	if err := ctx.Err(); err != nil {
		return out, &models.StageError{Stage: stage, Err: err}
	}
	if out.extracted.Err != nil {
		log.Warn("Extraction reported a problem", logger.Stage(string(stage)), logger.Error(out.extracted.Err))
	}
	if strings.TrimSpace(out.extracted.Text) == "" {
		return out, &models.StageError{Stage: stage, Err: ErrNoTextExtracted}
	}
	log.Debug("Stage finished", logger.Stage(string(stage)),
		logger.String("kind", string(out.extracted.Kind)),
		logger.Int("chars", len(out.extracted.Text)))
	o.checkpoint(ctx, job, models.StageRedaction, progressExtracted, queue.StatusRunning, "")

	stage = models.StageRedaction
	out.redacted = o.stages.Redactor.Redact(ctx, out.extracted.Text)
	if err := ctx.Err(); err != nil {
		return out, &models.StageError{Stage: stage, Err: err}
	}
	if out.redacted.Degraded {
		log.Warn("Redaction degraded, storing unredacted text", logger.Stage(string(stage)), logger.Error(out.redacted.Cause))
	}
	o.checkpoint(ctx, job, models.StageEmbedding, progressRedacted, queue.StatusRunning, "")

	stage = models.StageEmbedding
	out.vector, err = o.stages.Embedder.Embed(ctx, out.redacted.Text)
	if err != nil {
		return out, &models.StageError{Stage: stage, Err: err}
	}
	o.checkpoint(ctx, job, models.StageClassification, progressEmbedded, queue.StatusRunning, "")

	stage = models.StageClassification
	out.suggestion, err = o.stages.Tagger.SuggestTags(ctx, out.extracted.Text)
	if err != nil {
		return out, &models.StageError{Stage: stage, Err: err}
	}
	return out, nil
}

func applyOutcome(d *models.Document, out outcome, at time.Time) {
	d.ExtractedText = out.extracted.Text
	d.RedactedText = out.redacted.Text
	d.Embedding = out.vector
	d.Tags = append([]string{}, out.suggestion.Tags...)

	m := &d.Metadata
	m.Error = ""
	m.FailedStage = ""
	m.FailedAt = nil
	m.ProcessedAt = &at
	m.DocumentKind = out.extracted.Kind
	m.ExtractionMethod = string(out.extracted.Method)
	m.PageCount = out.extracted.Pages
	m.PIISummary = out.redacted.Counts
	m.EntitiesFound = out.redacted.EntitiesFound
	m.Sensitive = out.redacted.Sensitive
	m.RedactionDegraded = out.redacted.Degraded
	m.TagScores = out.suggestion.Scores
	if out.extracted.Extractor != "" {
		m.SetExtra("extractor", out.extracted.Extractor)
	}
	if out.extracted.Err != nil {
		m.SetExtra("extraction_warning", out.extracted.Err.Error())
	}
	if out.redacted.Cause != nil {
		m.SetExtra("redaction_error", out.redacted.Cause.Error())
	}
}

// fail records err on the document. It runs detached from ctx so that a
// job killed by its deadline still leaves a terminal status behind.
func (o *Orchestrator) fail(ctx context.Context, job *models.Job, docID string, err error, log logger.Logger) error {
	ctx = context.WithoutCancel(ctx)
	stage, msg := failureReason(err)
	at := o.now()

	log.Error("Processing failed", logger.Stage(string(stage)), logger.Error(err))
	ok, terr := o.repo.TransitionStatus(ctx, docID, models.StatusProcessing, models.StatusFailed, func(d *models.Document) {
		d.Metadata.Error = msg
		d.Metadata.FailedStage = stage
		d.Metadata.FailedAt = &at
	})
	if terr != nil {
		return fmt.Errorf("failed to record failure of document %s: %w", docID, terr)
	}
	if !ok {
		log.Warn("Document left processing before failure was recorded")
		return nil
	}
	o.checkpoint(ctx, job, stage, job.Progress, queue.StatusFailed, msg)
	return nil
}

func failureReason(err error) (models.Stage, string) {
	stage := models.StageExtraction
	cause := err
	var se *models.StageError
	if errors.As(err, &se) {
		stage = se.Stage
		cause = se.Err
	}
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return stage, "processing time limit exceeded"
	case errors.Is(cause, context.Canceled):
		return stage, "processing cancelled"
	}
	return stage, cause.Error()
}

// checkpoint stores advisory progress on the job and mirrors it to the
// status recorder. Failures are logged and otherwise ignored.
func (o *Orchestrator) checkpoint(ctx context.Context, job *models.Job, stage models.Stage, progress int, state, errMsg string) {
	at := o.now()
	job.Checkpoint(stage, progress, at)
	if _, err := o.repo.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.Checkpoint(stage, progress, at)
		return nil
	}); err != nil {
		o.logger.Warn("Failed to store checkpoint", logger.JobID(job.ID), logger.Stage(string(stage)), logger.Error(err))
	}
	if o.status == nil {
		return
	}
	if err := o.status.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    job.ID,
		Status:    state,
		Progress:  job.Progress,
		Stage:     string(stage),
		Error:     errMsg,
		UpdatedAt: at,
	}); err != nil {
		o.logger.Warn("Failed to mirror status", logger.JobID(job.ID), logger.Error(err))
	}
}
