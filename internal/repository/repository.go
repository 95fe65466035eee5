// Package repository defines the record store for documents, share grants
// and jobs.
package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/feichai0017/document-intelligence/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")
	ErrJobClaimed = errors.New("job already claimed")
)

// DocumentStore is CRUD over documents plus the owner and status queries.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// GetDocuments returns the documents that exist among ids, in ids order.
	GetDocuments(ctx context.Context, ids []string) ([]*models.Document, error)
	// ListDocumentsByOwner lists newest first. An empty status matches all.
	ListDocumentsByOwner(ctx context.Context, ownerID string, status models.Status) ([]*models.Document, error)
	ListDocumentsByStatus(ctx context.Context, status models.Status) ([]*models.Document, error)
	// UpdateDocument applies fn to the stored record atomically. fn must not
	// change ID, OwnerID or Status.
	UpdateDocument(ctx context.Context, id string, fn func(doc *models.Document) error) (*models.Document, error)
	// TransitionStatus moves a document from one status to another only if
	// it is still in from, applying mutate in the same transaction. It
	// reports false, with no error, when the current status differs.
	TransitionStatus(ctx context.Context, id string, from, to models.Status, mutate func(doc *models.Document)) (bool, error)
	// DeleteDocument removes the document with its grants and jobs.
	DeleteDocument(ctx context.Context, id string) error
}

// ShareStore keeps append-only share grants.
type ShareStore interface {
	CreateShare(ctx context.Context, grant *models.ShareGrant) error
	ListSharesForGrantee(ctx context.Context, granteeID string) ([]*models.ShareGrant, error)
	ListSharesForDocument(ctx context.Context, documentID string) ([]*models.ShareGrant, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, fn func(job *models.Job) error) (*models.Job, error)
	// ClaimJob records workerID as the job's single owner. It fails with
	// ErrJobClaimed when another worker holds the claim.
	ClaimJob(ctx context.Context, id, workerID string, at time.Time) (*models.Job, error)
}

type Repository interface {
	DocumentStore
	ShareStore
	JobStore
	Close() error
}

// ValidateTransition rejects moves the state machine does not allow.
func ValidateTransition(from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return &models.TransitionError{From: from, To: to}
	}
	return nil
}

// SortNewestFirst orders documents by creation time, newest first.
func SortNewestFirst(docs []*models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

// SortGrants orders grants by creation time, oldest first.
func SortGrants(grants []*models.ShareGrant) {
	sort.SliceStable(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].ID < grants[j].ID
	})
}

// ClaimAllowed reports whether workerID may take job. A worker may
// reclaim its own job.
func ClaimAllowed(job *models.Job, workerID string) bool {
	return job.ClaimedBy == "" || job.ClaimedBy == workerID
}
