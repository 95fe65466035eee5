// Package search answers similarity, question and suggestion queries over
// the documents a requester may see.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

var ErrEmptyQuery = errors.New("query is empty")

// NoThreshold keeps every candidate regardless of similarity.
const NoThreshold = -math.MaxFloat64

// Store is the read side of the record store that retrieval needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocuments(ctx context.Context, ids []string) ([]*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string, status models.Status) ([]*models.Document, error)
	ListSharesForGrantee(ctx context.Context, granteeID string) ([]*models.ShareGrant, error)
	ListSharesForDocument(ctx context.Context, documentID string) ([]*models.ShareGrant, error)
}

type Config struct {
	Threshold    float64
	Limit        int
	QATopK       int
	PrefixChars  int
	SnippetChars int
	ChunkSize    int
	ChunkOverlap int
}

func DefaultConfig() Config {
	return Config{
		Threshold:    0.7,
		Limit:        10,
		QATopK:       3,
		PrefixChars:  1000,
		SnippetChars: 200,
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Options tune one search. Zero values take the configured defaults.
type Options struct {
	Limit int
	// Threshold is the minimum similarity kept; nil means the default.
	Threshold *float64
	// DocumentIDs restricts the candidates; empty means every accessible
	// document. Each id is still checked for access and ids the requester
	// may not read are ignored.
	DocumentIDs []string
	// Highlight replaces the leading snippet with the best matching chunk.
	Highlight bool
}

// Hit is one ranked search result.
type Hit struct {
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Similarity  float64   `json:"similarity_score"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	Snippet     string    `json:"snippet,omitempty"`
}

type Searcher struct {
	store      Store
	encoder    embedding.Encoder
	summarizer Summarizer
	cfg        Config
	logger     logger.Logger
}

type Option func(*Searcher)

func WithConfig(cfg Config) Option {
	return func(s *Searcher) {
		s.cfg = cfg
	}
}

func WithSummarizer(sum Summarizer) Option {
	return func(s *Searcher) {
		s.summarizer = sum
	}
}

func NewSearcher(store Store, encoder embedding.Encoder, log logger.Logger, opts ...Option) *Searcher {
	s := &Searcher{
		store:      store,
		encoder:    encoder,
		summarizer: TemplateSummarizer{},
		cfg:        DefaultConfig(),
		logger:     log.Named("search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessibleDocuments is every completed document the requester owns or
// holds a grant for.
func (s *Searcher) AccessibleDocuments(ctx context.Context, requester string) ([]*models.Document, error) {
	owned, err := s.store.ListDocumentsByOwner(ctx, requester, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned documents: %w", err)
	}
	grants, err := s.store.ListSharesForGrantee(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}

	seen := make(map[string]bool, len(owned)+len(grants))
	docs := make([]*models.Document, 0, len(owned)+len(grants))
	for _, d := range owned {
		seen[d.ID] = true
		docs = append(docs, d)
	}
	var sharedIDs []string
	for _, g := range grants {
		if !seen[g.DocumentID] {
			seen[g.DocumentID] = true
			sharedIDs = append(sharedIDs, g.DocumentID)
		}
	}
	if len(sharedIDs) == 0 {
		return docs, nil
	}
	shared, err := s.store.GetDocuments(ctx, sharedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load shared documents: %w", err)
	}
	for _, d := range shared {
		if d.Status == models.StatusCompleted {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// accessible returns the document when requester may read it and it is
// completed, nil otherwise.
func (s *Searcher) accessible(ctx context.Context, requester, id string) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, nil
	}
	if doc.OwnerID == requester {
		return doc, nil
	}
	grants, err := s.store.ListSharesForDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.GranteeID == requester {
			return doc, nil
		}
	}
	return nil, nil
}

func (s *Searcher) candidates(ctx context.Context, requester string, ids []string) ([]*models.Document, error) {
	if len(ids) == 0 {
		return s.AccessibleDocuments(ctx, requester)
	}
	seen := make(map[string]bool, len(ids))
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		doc, err := s.accessible(ctx, requester, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check access to %s: %w", id, err)
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

type scored struct {
	doc        *models.Document
	similarity float64
}

// rank embeds the query once and scores every candidate against it,
// best first. Documents with an unusable vector are skipped.
func (s *Searcher) rank(ctx context.Context, requester, query string, ids []string, threshold float64) ([]scored, []float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, ErrEmptyQuery
	}
	docs, err := s.candidates(ctx, requester, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(docs) == 0 {
		return nil, nil, nil
	}

	qv, err := s.encoder.Encode(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed query: %w", err)
	}

	out := make([]scored, 0, len(docs))
	for _, d := range docs {
		if !d.Searchable() {
			continue
		}
		sim, err := embedding.Cosine(qv, d.Embedding)
		if err != nil {
			s.logger.Warn("Skipping document with unusable embedding", logger.DocumentID(d.ID), logger.Error(err))
			continue
		}
		if sim >= threshold {
			out = append(out, scored{doc: d, similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].similarity > out[j].similarity
	})
	return out, qv, nil
}

// Search returns the documents most similar to query. Only an empty query
// is an error; internal faults are logged and yield no hits.
func (s *Searcher) Search(ctx context.Context, requester, query string, opts Options) ([]Hit, error) {
	threshold := s.cfg.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.Limit
	}

	ranked, qv, err := s.rank(ctx, requester, query, opts.DocumentIDs, threshold)
	if errors.Is(err, ErrEmptyQuery) {
		return nil, err
	}
	if err != nil {
		s.logger.Error("Search failed", logger.String("requester", requester), logger.Error(err))
		return []Hit{}, nil
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = Hit{
			DocumentID:  r.doc.ID,
			Title:       r.doc.Title,
			Description: r.doc.Description,
			Similarity:  r.similarity,
			Tags:        r.doc.Tags,
			CreatedAt:   r.doc.CreatedAt,
			Snippet:     prefix(r.doc.RedactedText, s.cfg.SnippetChars),
		}
		if opts.Highlight {
			if best, ok := s.bestChunk(ctx, qv, r.doc.RedactedText); ok {
				hits[i].Snippet = best
			}
		}
	}

	s.logger.Debug("Search finished",
		logger.String("requester", requester),
		logger.Int("hits", len(hits)),
		logger.Float64("threshold", threshold),
	)
	return hits, nil
}

// bestChunk embeds the text's chunks and returns the one closest to qv.
func (s *Searcher) bestChunk(ctx context.Context, qv []float32, text string) (string, bool) {
	chunks, err := embedding.SplitChunks(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil || len(chunks) == 0 {
		return "", false
	}
	best, bestSim := "", math.Inf(-1)
	for _, c := range chunks {
		v, err := s.encoder.Encode(ctx, c.Text)
		if err != nil {
			s.logger.Warn("Chunk embedding failed", logger.Error(err))
			return "", false
		}
		sim, err := embedding.Cosine(qv, v)
		if err != nil {
			return "", false
		}
		if sim > bestSim {
			best, bestSim = c.Text, sim
		}
	}
	return best, true
}

// prefix cuts s to at most n characters.
func prefix(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
