package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// Reaper fails documents stuck in processing longer than the timeout,
// which happens when a worker dies mid job. It never stops the worker.
type Reaper struct {
	docs     repository.DocumentStore
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger
}

func NewReaper(docs repository.DocumentStore, timeout, interval time.Duration, log logger.Logger) *Reaper {
	if timeout <= 0 {
		timeout = time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{
		docs:     docs,
		timeout:  timeout,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Named("reaper"),
	}
}

// SetClock replaces the time source.
func (r *Reaper) SetClock(now func() time.Time) { r.now = now }

// Sweep fails every processing document created more than the timeout
// ago. Each transition is conditional on the document still being in
// processing, so a result committed concurrently is kept.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	docs, err := r.docs.ListDocumentsByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing documents: %w", err)
	}

	now := r.now()
	reaped := 0
	var errs []error
	for _, doc := range docs {
		if now.Sub(doc.CreatedAt) <= r.timeout {
			continue
		}
		ok, err := r.docs.TransitionStatus(ctx, doc.ID, models.StatusProcessing, models.StatusFailed, func(d *models.Document) {
			d.Metadata.Error = ReasonProcessingTimeout
			d.Metadata.FailedAt = &now
			d.Metadata.SetExtra("reaped_after", now.Sub(d.CreatedAt).Round(time.Second).String())
		})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("reap %s: %w", doc.ID, err))
			continue
		case !ok:
			r.logger.Debug("Document finished before it was reaped", logger.DocumentID(doc.ID))
			continue
		}
		reaped++
		r.logger.Warn("Reaped stalled document",
			logger.DocumentID(doc.ID),
			logger.Time("created_at", doc.CreatedAt),
		)
	}

	r.logger.Info("Sweep finished",
		logger.Int("candidates", len(docs)),
		logger.Int("reaped", reaped),
	)
	return reaped, errors.Join(errs...)
}

// Run sweeps on every tick until ctx ends.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Sweep failed", logger.Error(err))
			}
		}
	}
}
