package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// Store keeps records as JSON values with secondary index keys.
type Store struct {
	db     *badger.DB
	logger logger.Logger
}

var _ repository.Repository = (*Store)(nil)

// Open opens a store at path, or a memory-only store when inMemory is set.
func Open(path string, inMemory bool, log logger.Logger) (*Store, error) {
	db, err := openDB(path, inMemory, log)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanIDs collects record ids from an index prefix.
func scanIDs(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		ids = append(ids, idFromIndexKey(it.Item().KeyCopy(nil), prefix))
	}
	return ids
}

func (s *Store) CreateDocument(_ context.Context, doc *models.Document) error {
	return update(s.db, func(txn *badger.Txn) error {
		ok, err := exists(txn, documentKey(doc.ID))
		if err != nil {
			return err
		}
		if ok {
			return repository.ErrConflict
		}
		if err := setJSON(txn, documentKey(doc.ID), doc); err != nil {
			return err
		}
		if err := txn.Set(ownerIndexKey(doc.OwnerID, doc.ID), nil); err != nil {
			return err
		}
		return txn.Set(statusIndexKey(doc.Status, doc.ID), nil)
	})
}

func (s *Store) GetDocument(_ context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, documentKey(id), &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) GetDocuments(_ context.Context, ids []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = loadDocuments(txn, ids)
		return err
	})
	return docs, err
}

func loadDocuments(txn *badger.Txn, ids []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		var doc models.Document
		err := getJSON(txn, documentKey(id), &doc)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", id, err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (s *Store) ListDocumentsByOwner(_ context.Context, ownerID string, status models.Status) ([]*models.Document, error) {
	var docs []*models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := loadDocuments(txn, scanIDs(txn, ownerIndexPrefix(ownerID)))
		if err != nil {
			return err
		}
		for _, d := range all {
			if status == "" || d.Status == status {
				docs = append(docs, d)
			}
		}
		return nil
	})
	repository.SortNewestFirst(docs)
	return docs, err
}

func (s *Store) ListDocumentsByStatus(_ context.Context, status models.Status) ([]*models.Document, error) {
	var docs []*models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = loadDocuments(txn, scanIDs(txn, statusIndexPrefix(status)))
		return err
	})
	repository.SortNewestFirst(docs)
	return docs, err
}

func (s *Store) UpdateDocument(_ context.Context, id string, fn func(doc *models.Document) error) (*models.Document, error) {
	var out *models.Document
	err := update(s.db, func(txn *badger.Txn) error {
		var doc models.Document
		if err := getJSON(txn, documentKey(id), &doc); err != nil {
			return err
		}
		owner, status := doc.OwnerID, doc.Status
		if err := fn(&doc); err != nil {
			return err
		}
		doc.ID, doc.OwnerID, doc.Status = id, owner, status
		doc.UpdatedAt = time.Now().UTC()
		if err := setJSON(txn, documentKey(id), &doc); err != nil {
			return err
		}
		out = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) TransitionStatus(_ context.Context, id string, from, to models.Status, mutate func(doc *models.Document)) (bool, error) {
	if err := repository.ValidateTransition(from, to); err != nil {
		return false, err
	}
	var moved bool
	err := update(s.db, func(txn *badger.Txn) error {
		moved = false
		var doc models.Document
		if err := getJSON(txn, documentKey(id), &doc); err != nil {
			return err
		}
		if doc.Status != from {
			return nil
		}
		if mutate != nil {
			mutate(&doc)
		}
		doc.ID, doc.Status = id, to
		doc.UpdatedAt = time.Now().UTC()
		if err := setJSON(txn, documentKey(id), &doc); err != nil {
			return err
		}
		if err := txn.Delete(statusIndexKey(from, id)); err != nil {
			return err
		}
		if err := txn.Set(statusIndexKey(to, id), nil); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	return update(s.db, func(txn *badger.Txn) error {
		var doc models.Document
		if err := getJSON(txn, documentKey(id), &doc); err != nil {
			return err
		}
		keys := [][]byte{
			documentKey(id),
			ownerIndexKey(doc.OwnerID, id),
			statusIndexKey(doc.Status, id),
		}
		for _, shareID := range scanIDs(txn, shareDocIndexPrefix(id)) {
			var g models.ShareGrant
			if err := getJSON(txn, shareKey(shareID), &g); err == nil {
				keys = append(keys, granteeIndexKey(g.GranteeID, shareID))
			}
			keys = append(keys, shareKey(shareID), shareDocIndexKey(id, shareID))
		}
		for _, jobID := range scanIDs(txn, jobDocIndexPrefix(id)) {
			keys = append(keys, jobKey(jobID), jobDocIndexKey(id, jobID))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateShare(_ context.Context, grant *models.ShareGrant) error {
	return update(s.db, func(txn *badger.Txn) error {
		ok, err := exists(txn, documentKey(grant.DocumentID))
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrNotFound
		}
		if ok, err = exists(txn, shareKey(grant.ID)); err != nil {
			return err
		} else if ok {
			return repository.ErrConflict
		}
		if err := setJSON(txn, shareKey(grant.ID), grant); err != nil {
			return err
		}
		if err := txn.Set(granteeIndexKey(grant.GranteeID, grant.ID), nil); err != nil {
			return err
		}
		return txn.Set(shareDocIndexKey(grant.DocumentID, grant.ID), nil)
	})
}

func (s *Store) listShares(prefix []byte) ([]*models.ShareGrant, error) {
	var grants []*models.ShareGrant
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanIDs(txn, prefix) {
			var g models.ShareGrant
			if err := getJSON(txn, shareKey(id), &g); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return err
			}
			grants = append(grants, &g)
		}
		return nil
	})
	repository.SortGrants(grants)
	return grants, err
}

func (s *Store) ListSharesForGrantee(_ context.Context, granteeID string) ([]*models.ShareGrant, error) {
	return s.listShares(granteeIndexPrefix(granteeID))
}

func (s *Store) ListSharesForDocument(_ context.Context, documentID string) ([]*models.ShareGrant, error) {
	return s.listShares(shareDocIndexPrefix(documentID))
}

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	return update(s.db, func(txn *badger.Txn) error {
		ok, err := exists(txn, jobKey(job.ID))
		if err != nil {
			return err
		}
		if ok {
			return repository.ErrConflict
		}
		if err := setJSON(txn, jobKey(job.ID), job); err != nil {
			return err
		}
		return txn.Set(jobDocIndexKey(job.DocumentID, job.ID), nil)
	})
}

func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, jobKey(id), &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) UpdateJob(_ context.Context, id string, fn func(job *models.Job) error) (*models.Job, error) {
	var out *models.Job
	err := update(s.db, func(txn *badger.Txn) error {
		var job models.Job
		if err := getJSON(txn, jobKey(id), &job); err != nil {
			return err
		}
		if err := fn(&job); err != nil {
			return err
		}
		job.ID = id
		if err := setJSON(txn, jobKey(id), &job); err != nil {
			return err
		}
		out = &job
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
