package search

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/agent/mock"
	"github.com/feichai0017/document-intelligence/internal/models"
	badgerstore "github.com/feichai0017/document-intelligence/internal/repository/badger"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

type env struct {
	store   *badgerstore.Store
	encoder *mock.Encoder
	search  *Searcher
	log     *logger.TestLogger
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	log := logger.NewTestLogger()
	store, err := badgerstore.Open("", true, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	enc := mock.NewEncoder(2)
	enc.Vectors["q"] = []float32{1, 0}
	return &env{store: store, encoder: enc, search: NewSearcher(store, enc, log, opts...), log: log}
}

func (e *env) doc(t *testing.T, id, owner string, status models.Status, vec []float32, text string, tags ...string) {
	t.Helper()
	if tags == nil {
		tags = []string{}
	}
	require.NoError(t, e.store.CreateDocument(context.Background(), &models.Document{
		ID:           id,
		OwnerID:      owner,
		Title:        "title " + id,
		Status:       status,
		Embedding:    vec,
		RedactedText: text,
		Tags:         tags,
		CreatedAt:    base,
		UpdatedAt:    base,
	}))
}

func (e *env) share(t *testing.T, docID, grantee string) {
	t.Helper()
	require.NoError(t, e.store.CreateShare(context.Background(), &models.ShareGrant{
		ID:          "grant-" + docID + "-" + grantee,
		DocumentID:  docID,
		GranteeID:   grantee,
		Permissions: []models.Permission{models.PermissionRead},
		GrantedBy:   "owner",
		CreatedAt:   base,
	}))
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.DocumentID
	}
	return out
}

func threshold(v float64) *float64 { return &v }

func TestSearchAppliesThresholdAndOrder(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "low", "alice", models.StatusCompleted, unit(0.4), "low text")
	e.doc(t, "high", "alice", models.StatusCompleted, unit(0.95), "high text")

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{Threshold: threshold(0.9)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "high", hits[0].DocumentID)
	assert.InDelta(t, 0.95, hits[0].Similarity, 1e-6)
	assert.Equal(t, "high text", hits[0].Snippet)

	all, err := e.search.Search(context.Background(), "alice", "q", Options{Threshold: threshold(NoThreshold)})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, ids(all))
}

func TestSearchDefaults(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "a", "alice", models.StatusCompleted, unit(0.99), "")
	e.doc(t, "b", "alice", models.StatusCompleted, unit(0.8), "")
	e.doc(t, "c", "alice", models.StatusCompleted, unit(0.6), "")

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(hits))

	hits, err = e.search.Search(context.Background(), "alice", "q", Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(hits))

	_, err = e.search.Search(context.Background(), "alice", "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAccessibleDocuments(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "own", "alice", models.StatusCompleted, unit(1), "")
	e.doc(t, "own-busy", "alice", models.StatusProcessing, nil, "")
	e.doc(t, "shared", "bob", models.StatusCompleted, unit(1), "")
	e.doc(t, "shared-failed", "bob", models.StatusFailed, nil, "")
	e.doc(t, "private", "bob", models.StatusCompleted, unit(1), "")
	e.share(t, "shared", "alice")
	e.share(t, "shared-failed", "alice")

	docs, err := e.search.AccessibleDocuments(context.Background(), "alice")
	require.NoError(t, err)
	var got []string
	for _, d := range docs {
		got = append(got, d.ID)
	}
	assert.ElementsMatch(t, []string{"own", "shared"}, got)

	bob, err := e.search.AccessibleDocuments(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, bob, 2)

	none, err := e.search.AccessibleDocuments(context.Background(), "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScopedSearchChecksEveryID(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "own", "alice", models.StatusCompleted, unit(0.9), "")
	e.doc(t, "shared", "bob", models.StatusCompleted, unit(0.95), "")
	e.doc(t, "private", "bob", models.StatusCompleted, unit(1), "")
	e.share(t, "shared", "alice")

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{
		DocumentIDs: []string{"private", "missing", "shared", "own", "own"},
		Threshold:   threshold(NoThreshold),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "own"}, ids(hits))
}

func TestEmptyDocumentIDsSearchEverything(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "own", "alice", models.StatusCompleted, unit(0.9), "")
	e.doc(t, "shared", "bob", models.StatusCompleted, unit(0.95), "")
	e.share(t, "shared", "alice")

	for name, scope := range map[string][]string{"omitted": nil, "empty": {}} {
		hits, err := e.search.Search(context.Background(), "alice", "q", Options{DocumentIDs: scope})
		require.NoError(t, err, name)
		assert.Equal(t, []string{"shared", "own"}, ids(hits), name)
	}
}

func TestSearchHidesInternalFaults(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "doc", "alice", models.StatusCompleted, unit(1), "text")
	e.encoder.EncodeFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("provider down")
	}

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
	assert.True(t, e.log.HasEntry("ERROR", "Search failed"))

	broken := NewSearcher(brokenStore{}, e.encoder, logger.NewNop())
	hits, err = broken.Search(context.Background(), "alice", "q", Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = e.search.Search(context.Background(), "alice", "", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchSkipsUnusableEmbeddings(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "good", "alice", models.StatusCompleted, unit(0.9), "")
	e.doc(t, "broken", "alice", models.StatusCompleted, []float32{1, 0, 0}, "")

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(hits))
	assert.True(t, e.log.HasEntry("WARN", "Skipping document with unusable embedding"))
}

func TestSearchHighlightPicksBestChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize, cfg.ChunkOverlap = 3, 0
	e := newEnv(t, WithConfig(cfg))
	e.encoder.Vectors["one two three"] = []float32{0, 1}
	e.encoder.Vectors["four five six"] = []float32{1, 0}
	e.doc(t, "doc", "alice", models.StatusCompleted, unit(1), "one two three four five six")

	hits, err := e.search.Search(context.Background(), "alice", "q", Options{Highlight: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "four five six", hits[0].Snippet)
}

func TestAnswerTemplates(t *testing.T) {
	e := newEnv(t)
	long := strings.Repeat("x", 1200)
	e.doc(t, "first", "alice", models.StatusCompleted, unit(0.9), long)
	e.doc(t, "second", "alice", models.StatusCompleted, unit(0.5), "second text")
	e.doc(t, "third", "alice", models.StatusCompleted, unit(0.2), "third text")
	e.doc(t, "fourth", "alice", models.StatusCompleted, unit(0.1), "fourth text")
	for _, q := range []string{"What is due?", "How do I pay?", "Tell me more"} {
		e.encoder.Vectors[q] = []float32{1, 0}
	}

	ans := e.search.Answer(context.Background(), "alice", "What is due?", nil)
	assert.Equal(t, "Based on the documents, I found relevant information: "+strings.Repeat("x", 500)+"...", ans.Answer)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "first", ans.Sources[0].DocumentID)
	assert.Equal(t, "second", ans.Sources[1].DocumentID)
	assert.Equal(t, "third", ans.Sources[2].DocumentID)

	ans = e.search.Answer(context.Background(), "alice", "How do I pay?", nil)
	assert.True(t, strings.HasPrefix(ans.Answer, "The documents suggest the following approach: "))

	ans = e.search.Answer(context.Background(), "alice", "Tell me more", []string{"second", "third"})
	assert.Equal(t, "Here's what I found in the documents: second text third text...", ans.Answer)
	assert.Len(t, ans.Sources, 2)
}

func TestAnswerFallsBack(t *testing.T) {
	e := newEnv(t)
	ans := e.search.Answer(context.Background(), "alice", "q", nil)
	assert.Equal(t, FallbackAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)

	e.doc(t, "doc", "alice", models.StatusCompleted, unit(1), "text")
	e.encoder.EncodeFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("encoder down")
	}
	ans = e.search.Answer(context.Background(), "alice", "q", nil)
	assert.Equal(t, FallbackAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
}

type brokenStore struct {
	Store
}

func (brokenStore) ListDocumentsByOwner(context.Context, string, models.Status) ([]*models.Document, error) {
	return nil, errors.New("store down")
}

func TestSuggestions(t *testing.T) {
	e := newEnv(t)
	e.doc(t, "a", "alice", models.StatusCompleted, unit(1), "", "invoice", "contract")
	e.doc(t, "b", "alice", models.StatusProcessing, nil, "", "invoice", "finance")
	e.doc(t, "c", "bob", models.StatusCompleted, unit(1), "", "report")

	got := e.search.Suggestions(context.Background(), "alice", "Show me the INVOICE and report")
	assert.Equal(t, []string{
		"Find documents tagged with 'invoice'",
		"Search for contracts and legal documents",
		"Find financial reports and invoices",
		"Look for technical documentation",
		"Search for policy documents",
	}, got)

	got = e.search.Suggestions(context.Background(), "alice", "finance contract")
	assert.Len(t, got, 5)
	assert.Equal(t, "Find documents tagged with 'contract'", got[0])
	assert.Equal(t, "Find documents tagged with 'finance'", got[1])

	broken := NewSearcher(brokenStore{}, e.encoder, logger.NewNop())
	assert.Empty(t, broken.Suggestions(context.Background(), "alice", "anything"))
}

func TestTemplateSummarizerWithoutPassages(t *testing.T) {
	out, err := TemplateSummarizer{}.Summarize(context.Background(), "what", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, out)
}
