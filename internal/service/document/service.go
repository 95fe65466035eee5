// Package document is the ingestion gate and the processing state machine
// for uploaded documents.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/internal/utils/validator"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
	"github.com/feichai0017/document-intelligence/pkg/storage"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNoTextExtracted = errors.New("no text extracted")
	ErrInvalidStatus   = errors.New("invalid document status for this operation")
	ErrInvalidRequest  = errors.New("invalid request")

	errMissingStage = errors.New("every pipeline stage must be set")
)

// ReasonProcessingTimeout is recorded on documents the reaper fails.
const ReasonProcessingTimeout = "processing timeout"

// SubmitRequest is one upload handed to the ingestion gate.
type SubmitRequest struct {
	OwnerID     string
	Filename    string
	Title       string
	Description string
	Data        []byte
}

// SubmitResult is the job handle returned to the uploader.
type SubmitResult struct {
	JobID      string        `json:"job_id"`
	DocumentID string        `json:"document_id"`
	Status     models.Status `json:"status"`
	TaskHandle string        `json:"task_handle,omitempty"`
	Filename   string        `json:"filename"`
}

// DocumentUpdate carries the owner editable fields. Nil fields are left
// unchanged.
type DocumentUpdate struct {
	Title       *string
	Description *string
	Tags        []string
}

type Service struct {
	repo         repository.Repository
	files        storage.Storage
	queue        queue.Queue
	validator    *validator.DocumentValidator
	orchestrator *Orchestrator
	export       exportConfig
	now          func() time.Time
	logger       logger.Logger
}

type ServiceOption func(*Service)

func NewService(
	repo repository.Repository,
	files storage.Storage,
	q queue.Queue,
	v *validator.DocumentValidator,
	orchestrator *Orchestrator,
	log logger.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:         repo,
		files:        files,
		queue:        q,
		validator:    v,
		orchestrator: orchestrator,
		export:       defaultExportConfig(),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       log.Named("document-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and stores an upload, records the document and its job,
// and enqueues the job. It returns as soon as the job is queued.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	s.logger.Info("Starting file submission",
		logger.String("filename", req.Filename),
		logger.Int("size", len(req.Data)),
	)

	check := s.validator.Validate(req.Filename, req.Data)
	if err := check.Err(); err != nil {
		s.logger.Warn("File validation failed", logger.String("filename", req.Filename), logger.Error(err))
		return nil, err
	}

	now := s.now()
	docID := uuid.New().String()
	key := fmt.Sprintf("documents/%s/%s%s", req.OwnerID, docID, strings.ToLower(filepath.Ext(req.Filename)))
	if _, err := s.files.Store(ctx, bytes.NewReader(req.Data), int64(len(req.Data)), key); err != nil {
		s.logger.Error("Failed to store file", logger.String("filename", req.Filename), logger.Error(err))
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	}
	doc := &models.Document{
		ID:          docID,
		OwnerID:     req.OwnerID,
		Title:       title,
		Description: req.Description,
		Filename:    req.Filename,
		FileKey:     key,
		FileSize:    int64(len(req.Data)),
		MediaKind:   check.FileInfo.MediaKind,
		Status:      models.StatusPending,
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.Metadata.PageCount = check.FileInfo.PageCount
	doc.Metadata.SetExtra("sha256", check.FileInfo.Hash)
	doc.Metadata.SetExtra("mime_type", check.FileInfo.MimeType)
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	job := &models.Job{
		ID:         uuid.New().String(),
		DocumentID: docID,
		OwnerID:    req.OwnerID,
		CreatedAt:  now,
	}
	job.Checkpoint(models.StageQueued, 0, now)
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if ok, err := s.repo.TransitionStatus(ctx, docID, models.StatusPending, models.StatusProcessing, nil); err != nil || !ok {
		if err == nil {
			err = ErrInvalidStatus
		}
		return nil, fmt.Errorf("failed to start processing: %w", err)
	}

	handle, err := s.queue.Enqueue(ctx, &queue.Task{
		ID:         job.ID,
		Type:       queue.TaskTypeDocumentProcess,
		DocumentID: docID,
		OwnerID:    req.OwnerID,
		CreatedAt:  now,
	})
	if err != nil {
		s.logger.Error("Failed to enqueue task", logger.JobID(job.ID), logger.Error(err))
		s.failUnqueued(ctx, docID, err)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if _, err := s.repo.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.TaskHandle = handle
		return nil
	}); err != nil {
		s.logger.Warn("Failed to store task handle", logger.JobID(job.ID), logger.Error(err))
	}

	s.logger.Info("Document queued for processing",
		logger.JobID(job.ID),
		logger.DocumentID(docID),
		logger.String("filename", req.Filename),
	)
	return &SubmitResult{
		JobID:      job.ID,
		DocumentID: docID,
		Status:     models.StatusProcessing,
		TaskHandle: handle,
		Filename:   req.Filename,
	}, nil
}

func (s *Service) failUnqueued(ctx context.Context, docID string, cause error) {
	at := s.now()
	ctx = context.WithoutCancel(ctx)
	if _, err := s.repo.TransitionStatus(ctx, docID, models.StatusProcessing, models.StatusFailed, func(d *models.Document) {
		d.Metadata.Error = fmt.Sprintf("failed to enqueue: %v", cause)
		d.Metadata.FailedStage = models.StageQueued
		d.Metadata.FailedAt = &at
	}); err != nil {
		s.logger.Error("Failed to mark unqueued document failed", logger.DocumentID(docID), logger.Error(err))
	}
}

// BatchItem is the per-file outcome of SubmitBatch.
type BatchItem struct {
	Filename string        `json:"filename"`
	Result   *SubmitResult `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// SubmitBatch submits every file concurrently. One file failing does not
// stop the others; the returned error joins the individual failures.
func (s *Service) SubmitBatch(ctx context.Context, reqs []SubmitRequest) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))
	var mu sync.Mutex
	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, req := range reqs {
		g.Go(func() error {
			items[i].Filename = req.Filename
			res, err := s.Submit(gctx, req)
			if err != nil {
				items[i].Error = err.Error()
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", req.Filename, err))
				mu.Unlock()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return items, errors.Join(errs...)
}

// HandleDocument is the queue handler for document jobs.
func (s *Service) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task without job id", ErrInvalidRequest)
	}
	return s.orchestrator.Process(ctx, task.ID)
}

// GetStatus reports a job's progress to its owner.
func (s *Service) GetStatus(ctx context.Context, requester, jobID string) (*models.JobStatus, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != requester {
		return nil, ErrAccessDenied
	}
	doc, err := s.repo.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}

	st := &models.JobStatus{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		State:      doc.Status,
		Progress:   job.Progress,
		Stage:      job.Stage,
		Error:      doc.Metadata.Error,
	}
	if !doc.Status.Terminal() && s.queue != nil {
		if mirrored, err := s.queue.GetTaskStatus(ctx, job.ID); err == nil && mirrored.Progress > st.Progress {
			st.Progress = mirrored.Progress
			st.Stage = models.Stage(mirrored.Stage)
		}
	}
	if doc.Status == models.StatusCompleted {
		st.Progress = 100
		st.Stage = models.StageDone
	}
	return st, nil
}

// GetDocument returns the document if requester owns it or holds a grant.
func (s *Service) GetDocument(ctx context.Context, requester, id string) (*models.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID == requester {
		return doc, nil
	}
	grants, err := s.repo.ListSharesForDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.GranteeID == requester {
			return doc, nil
		}
	}
	return nil, ErrAccessDenied
}

// ListDocuments lists the requester's own documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, requester string, status models.Status) ([]*models.Document, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	return s.repo.ListDocumentsByOwner(ctx, requester, status)
}

// UpdateDocument edits title, description or tags. Owner only.
func (s *Service) UpdateDocument(ctx context.Context, requester, id string, upd DocumentUpdate) (*models.Document, error) {
	if err := s.requireOwner(ctx, requester, id); err != nil {
		return nil, err
	}
	return s.repo.UpdateDocument(ctx, id, func(d *models.Document) error {
		if upd.Title != nil {
			d.Title = *upd.Title
		}
		if upd.Description != nil {
			d.Description = *upd.Description
		}
		if upd.Tags != nil {
			d.Tags = normalizeTags(upd.Tags)
		}
		return nil
	})
}

// DeleteDocument removes the raw file and the record. Owner only.
func (s *Service) DeleteDocument(ctx context.Context, requester, id string) error {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.OwnerID != requester {
		return ErrAccessDenied
	}
	if err := s.files.Delete(ctx, doc.FileKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.logger.Info("Document deleted", logger.DocumentID(id))
	return nil
}

// ShareDocument appends a grant letting grantee read the document.
func (s *Service) ShareDocument(ctx context.Context, requester, id, grantee string, permissions []string) (*models.ShareGrant, error) {
	if grantee == "" {
		return nil, fmt.Errorf("%w: grantee is required", ErrInvalidRequest)
	}
	if grantee == requester {
		return nil, fmt.Errorf("%w: cannot share a document with yourself", ErrInvalidRequest)
	}
	perms, err := models.ParsePermissions(permissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.requireOwner(ctx, requester, id); err != nil {
		return nil, err
	}

	now := s.now()
	grant := &models.ShareGrant{
		ID:          ulid.Make().String(),
		DocumentID:  id,
		GranteeID:   grantee,
		Permissions: perms,
		GrantedBy:   requester,
		CreatedAt:   now,
	}
	if err := s.repo.CreateShare(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	s.logger.Info("Document shared", logger.DocumentID(id), logger.String("grantee", grantee))
	return grant, nil
}

// ListShares lists the grants on a document. Owner only.
func (s *Service) ListShares(ctx context.Context, requester, id string) ([]*models.ShareGrant, error) {
	if err := s.requireOwner(ctx, requester, id); err != nil {
		return nil, err
	}
	return s.repo.ListSharesForDocument(ctx, id)
}

// CleanupFiles removes raw files older than retention from storage.
func (s *Service) CleanupFiles(ctx context.Context, retention time.Duration) error {
	threshold := s.now().Add(-retention)
	if err := s.files.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed file cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *Service) requireOwner(ctx context.Context, requester, id string) error {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.OwnerID != requester {
		return ErrAccessDenied
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
