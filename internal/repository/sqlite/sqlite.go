// Package sqlite is the record store shared by the API server and worker
// processes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, created_at);

CREATE TABLE IF NOT EXISTS share_grants (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	grantee_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_share_grants_grantee ON share_grants(grantee_id);
CREATE INDEX IF NOT EXISTS idx_share_grants_document ON share_grants(document_id);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	claimed_by TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_document ON jobs(document_id);
`

// Store persists each record as a JSON column next to the indexed fields.
// Status changes are conditional updates on the status column.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

var _ repository.Repository = (*Store)(nil)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Open opens the database at path. ":memory:" opens a private in-memory
// database on a single connection. A path that is already a "file:" URI
// keeps its own query parameters.
func Open(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	memory := path == ":memory:"
	dsn := path
	switch {
	case memory:
	case strings.HasPrefix(path, "file:"):
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + pragmas
	default:
		dsn = "file:" + path + "?" + pragmas
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJSON(row *sql.Row, v any) error {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

func loadDocument(ctx context.Context, q queryer, id string) (*models.Document, error) {
	var doc models.Document
	if err := scanJSON(q.QueryRowContext(ctx, `SELECT data FROM documents WHERE id = ?`, id), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, status, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, string(doc.Status), doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(), string(data))
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return loadDocument(ctx, s.db, id)
}

func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := loadDocument(ctx, s.db, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	repository.SortNewestFirst(docs)
	return docs, nil
}

func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerID string, status models.Status) ([]*models.Document, error) {
	if status == "" {
		return s.queryDocuments(ctx, `SELECT data FROM documents WHERE owner_id = ?`, ownerID)
	}
	return s.queryDocuments(ctx, `SELECT data FROM documents WHERE owner_id = ? AND status = ?`, ownerID, string(status))
}

func (s *Store) ListDocumentsByStatus(ctx context.Context, status models.Status) ([]*models.Document, error) {
	return s.queryDocuments(ctx, `SELECT data FROM documents WHERE status = ?`, string(status))
}

func (s *Store) UpdateDocument(ctx context.Context, id string, fn func(doc *models.Document) error) (*models.Document, error) {
	var out *models.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := loadDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		owner, status := doc.OwnerID, doc.Status
		if err := fn(doc); err != nil {
			return err
		}
		doc.ID, doc.OwnerID, doc.Status = id, owner, status
		doc.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET updated_at = ?, data = ? WHERE id = ?`,
			doc.UpdatedAt.UnixNano(), string(data), id); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.Status, mutate func(doc *models.Document)) (bool, error) {
	if err := repository.ValidateTransition(from, to); err != nil {
		return false, err
	}
	var moved bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := loadDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.Status != from {
			return nil
		}
		if mutate != nil {
			mutate(doc)
		}
		doc.ID, doc.Status = id, to
		doc.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET status = ?, updated_at = ?, data = ? WHERE id = ? AND status = ?`,
			string(to), doc.UpdatedAt.UnixNano(), string(data), id, string(from))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		moved = n == 1
		return nil
	})
	return moved, err
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM share_grants WHERE document_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE document_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreateShare(ctx context.Context, grant *models.ShareGrant) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, grant.DocumentID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO share_grants (id, document_id, grantee_id, created_at, data) VALUES (?, ?, ?, ?, ?)`,
			grant.ID, grant.DocumentID, grant.GranteeID, grant.CreatedAt.UnixNano(), string(data))
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	})
}

func (s *Store) queryGrants(ctx context.Context, query string, arg string) ([]*models.ShareGrant, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*models.ShareGrant
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var g models.ShareGrant
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, err
		}
		grants = append(grants, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	repository.SortGrants(grants)
	return grants, nil
}

func (s *Store) ListSharesForGrantee(ctx context.Context, granteeID string) ([]*models.ShareGrant, error) {
	return s.queryGrants(ctx, `SELECT data FROM share_grants WHERE grantee_id = ?`, granteeID)
}

func (s *Store) ListSharesForDocument(ctx context.Context, documentID string) ([]*models.ShareGrant, error) {
	return s.queryGrants(ctx, `SELECT data FROM share_grants WHERE document_id = ?`, documentID)
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, document_id, claimed_by, data) VALUES (?, ?, ?, ?)`,
		job.ID, job.DocumentID, job.ClaimedBy, string(data))
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func loadJob(ctx context.Context, q queryer, id string) (*models.Job, error) {
	var job models.Job
	if err := scanJSON(q.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return loadJob(ctx, s.db, id)
}

func (s *Store) UpdateJob(ctx context.Context, id string, fn func(job *models.Job) error) (*models.Job, error) {
	var out *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJob(ctx, tx, id)
		if err != nil {
			return err
		}
		claimedBy := job.ClaimedBy
		if err := fn(job); err != nil {
			return err
		}
		job.ID = id
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET claimed_by = ?, data = ? WHERE id = ? AND claimed_by = ?`,
			job.ClaimedBy, string(data), id, claimedBy)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.ErrJobClaimed
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ClaimJob(ctx context.Context, id, workerID string, at time.Time) (*models.Job, error) {
	return s.UpdateJob(ctx, id, func(job *models.Job) error {
		if !repository.ClaimAllowed(job, workerID) {
			return repository.ErrJobClaimed
		}
		job.ClaimedBy = workerID
		job.ClaimedAt = &at
		job.UpdatedAt = at
		return nil
	})
}
