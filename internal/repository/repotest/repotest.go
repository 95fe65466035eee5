// Package repotest holds the behaviour every repository backend must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
)

// Factory returns a fresh, empty repository. The suite closes it.
type Factory func(t *testing.T) repository.Repository

func Document(id, owner string, status models.Status, created time.Time) *models.Document {
	return &models.Document{
		ID:        id,
		OwnerID:   owner,
		Title:     "doc " + id,
		Filename:  id + ".pdf",
		MediaKind: models.MediaKindPDF,
		Status:    status,
		Tags:      []string{},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Run exercises a backend against the repository contract.
func Run(t *testing.T, newRepo Factory) {
	tests := map[string]func(t *testing.T, repo repository.Repository){
		"DocumentCRUD":        testDocumentCRUD,
		"OwnerAndStatusLists": testLists,
		"TransitionStatus":    testTransition,
		"TransitionRace":      testTransitionRace,
		"Shares":              testShares,
		"JobsAndClaims":       testJobs,
		"DeleteCascades":      testDeleteCascades,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			defer repo.Close()
			fn(t, repo)
		})
	}
}

func testDocumentCRUD(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := Document("d1", "alice", models.StatusPending, now)
	doc.Metadata.SetExtra("source", "upload")
	require.NoError(t, repo.CreateDocument(ctx, doc))
	assert.ErrorIs(t, repo.CreateDocument(ctx, doc), repository.ErrConflict)

	got, err := repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "upload", got.Metadata.Extra["source"])
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = repo.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	updated, err := repo.UpdateDocument(ctx, "d1", func(d *models.Document) error {
		d.Title = "renamed"
		d.Tags = []string{"invoice"}
		d.OwnerID = "mallory"
		d.Status = models.StatusCompleted
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "alice", updated.OwnerID)
	assert.Equal(t, models.StatusPending, updated.Status)

	boom := errors.New("abort")
	_, err = repo.UpdateDocument(ctx, "d1", func(d *models.Document) error {
		d.Title = "lost"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _ = repo.GetDocument(ctx, "d1")
	assert.Equal(t, "renamed", got.Title)

	docs, err := repo.GetDocuments(ctx, []string{"missing", "d1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
}

func testLists(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateDocument(ctx, Document("a1", "alice", models.StatusPending, base)))
	require.NoError(t, repo.CreateDocument(ctx, Document("a2", "alice", models.StatusProcessing, base.Add(time.Hour))))
	require.NoError(t, repo.CreateDocument(ctx, Document("b1", "bob", models.StatusProcessing, base.Add(2*time.Hour))))

	owned, err := repo.ListDocumentsByOwner(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "a2", owned[0].ID, "newest first")

	owned, err = repo.ListDocumentsByOwner(ctx, "alice", models.StatusPending)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "a1", owned[0].ID)

	processing, err := repo.ListDocumentsByStatus(ctx, models.StatusProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 2)

	ok, err := repo.TransitionStatus(ctx, "a2", models.StatusProcessing, models.StatusCompleted, nil)
	require.NoError(t, err)
	require.True(t, ok)
	processing, _ = repo.ListDocumentsByStatus(ctx, models.StatusProcessing)
	require.Len(t, processing, 1)
	assert.Equal(t, "b1", processing[0].ID)
	completed, _ := repo.ListDocumentsByStatus(ctx, models.StatusCompleted)
	require.Len(t, completed, 1)
}

func testTransition(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateDocument(ctx, Document("d1", "alice", models.StatusPending, time.Now())))

	_, err := repo.TransitionStatus(ctx, "d1", models.StatusPending, models.StatusCompleted, nil)
	var terr *models.TransitionError
	assert.ErrorAs(t, err, &terr)

	ok, err := repo.TransitionStatus(ctx, "d1", models.StatusPending, models.StatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(ctx, "d1", models.StatusProcessing, models.StatusCompleted, func(d *models.Document) {
		d.Embedding = []float32{1, 0}
		d.Tags = []string{"invoice"}
		d.Metadata.EntitiesFound = 2
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
	assert.Equal(t, 2, got.Metadata.EntitiesFound)

	ok, err = repo.TransitionStatus(ctx, "d1", models.StatusProcessing, models.StatusFailed, func(d *models.Document) {
		d.Metadata.Error = "processing timeout"
	})
	require.NoError(t, err)
	assert.False(t, ok)
	got, _ = repo.GetDocument(ctx, "d1")
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Empty(t, got.Metadata.Error)

	_, err = repo.TransitionStatus(ctx, "missing", models.StatusProcessing, models.StatusFailed, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// testTransitionRace runs a completion and a reap against the same
// processing document; exactly one may win.
func testTransitionRace(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("race-%d", i)
		require.NoError(t, repo.CreateDocument(ctx, Document(id, "alice", models.StatusProcessing, time.Now())))

		var (
			wg   sync.WaitGroup
			wins [2]bool
			errs [2]error
		)
		targets := [2]models.Status{models.StatusCompleted, models.StatusFailed}
		for k := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				wins[k], errs[k] = repo.TransitionStatus(ctx, id, models.StatusProcessing, targets[k], nil)
			}()
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.NotEqual(t, wins[0], wins[1], "exactly one transition must win")

		got, err := repo.GetDocument(ctx, id)
		require.NoError(t, err)
		if wins[0] {
			assert.Equal(t, models.StatusCompleted, got.Status)
		} else {
			assert.Equal(t, models.StatusFailed, got.Status)
		}
	}
}

func testShares(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateDocument(ctx, Document("d1", "alice", models.StatusCompleted, now)))
	require.NoError(t, repo.CreateDocument(ctx, Document("d2", "alice", models.StatusCompleted, now)))

	g1 := &models.ShareGrant{ID: "g1", DocumentID: "d1", GranteeID: "bob", Permissions: []models.Permission{models.PermissionRead}, GrantedBy: "alice", CreatedAt: now}
	g2 := &models.ShareGrant{ID: "g2", DocumentID: "d2", GranteeID: "bob", Permissions: []models.Permission{models.PermissionRead}, GrantedBy: "alice", CreatedAt: now.Add(time.Second)}
	g3 := &models.ShareGrant{ID: "g3", DocumentID: "d1", GranteeID: "carol", Permissions: []models.Permission{models.PermissionRead, models.PermissionShare}, GrantedBy: "alice", CreatedAt: now.Add(2 * time.Second)}
	for _, g := range []*models.ShareGrant{g1, g2, g3} {
		require.NoError(t, repo.CreateShare(ctx, g))
	}
	assert.ErrorIs(t, repo.CreateShare(ctx, g1), repository.ErrConflict)
	assert.ErrorIs(t, repo.CreateShare(ctx, &models.ShareGrant{ID: "g4", DocumentID: "nope", GranteeID: "bob", CreatedAt: now}), repository.ErrNotFound)

	bobs, err := repo.ListSharesForGrantee(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, "g1", bobs[0].ID)
	assert.Equal(t, "g2", bobs[1].ID)

	onD1, err := repo.ListSharesForDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, onD1, 2)
	assert.Equal(t, "carol", onD1[1].GranteeID)
	assert.Equal(t, []models.Permission{models.PermissionRead, models.PermissionShare}, onD1[1].Permissions)

	none, err := repo.ListSharesForGrantee(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testJobs(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateDocument(ctx, Document("d1", "alice", models.StatusProcessing, now)))
	job := &models.Job{ID: "j1", DocumentID: "d1", OwnerID: "alice", Stage: models.StageQueued, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateJob(ctx, job))
	assert.ErrorIs(t, repo.CreateJob(ctx, job), repository.ErrConflict)

	claimed, err := repo.ClaimJob(ctx, "j1", "worker-a", now)
	require.NoError(t, err)
	assert.Equal(t, "worker-a", claimed.ClaimedBy)

	_, err = repo.ClaimJob(ctx, "j1", "worker-b", now)
	assert.ErrorIs(t, err, repository.ErrJobClaimed)
	_, err = repo.ClaimJob(ctx, "j1", "worker-a", now)
	assert.NoError(t, err, "a worker may reclaim its own job")

	updated, err := repo.UpdateJob(ctx, "j1", func(j *models.Job) error {
		j.Checkpoint(models.StageExtraction, 20, now)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Progress)

	got, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageExtraction, got.Stage)
	require.Len(t, got.Checkpoints, 1)

	_, err = repo.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testDeleteCascades(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateDocument(ctx, Document("d1", "alice", models.StatusCompleted, now)))
	require.NoError(t, repo.CreateShare(ctx, &models.ShareGrant{ID: "g1", DocumentID: "d1", GranteeID: "bob", GrantedBy: "alice", CreatedAt: now}))
	require.NoError(t, repo.CreateJob(ctx, &models.Job{ID: "j1", DocumentID: "d1", CreatedAt: now}))

	require.NoError(t, repo.DeleteDocument(ctx, "d1"))
	_, err := repo.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetJob(ctx, "j1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	shares, err := repo.ListSharesForGrantee(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, shares)
	owned, err := repo.ListDocumentsByOwner(ctx, "alice", "")
	require.NoError(t, err)
	assert.Empty(t, owned)

	assert.ErrorIs(t, repo.DeleteDocument(ctx, "d1"), repository.ErrNotFound)
}
