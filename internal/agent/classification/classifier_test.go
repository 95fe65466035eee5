package classification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// tableScorer returns fixed scores per label and records what it saw.
type tableScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	byText func(text, label string) float64
	texts  []string
	err    error
}

func (s *tableScorer) Score(_ context.Context, text string, labels []string) ([]models.LabelScore, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.LabelScore, 0, len(labels))
	for _, l := range labels {
		v := s.scores[l]
		if s.byText != nil {
			v = s.byText(text, l)
		}
		out = append(out, models.LabelScore{Label: l, Score: v})
	}
	return out, nil
}

func TestClassifyRanksDescending(t *testing.T) {
	s := &tableScorer{scores: map[string]float64{"invoice": 0.6, "contract": 0.1, "receipt": 0.3}}
	c := NewClassifier(s, []string{"contract", "invoice", "receipt"}, logger.NewNop())

	got, err := c.Classify(context.Background(), "pay by friday", nil)
	require.NoError(t, err)
	assert.Equal(t, []models.LabelScore{
		{Label: "invoice", Score: 0.6},
		{Label: "receipt", Score: 0.3},
		{Label: "contract", Score: 0.1},
	}, got)
}

func TestClassifyTiesKeepLabelOrder(t *testing.T) {
	s := &tableScorer{scores: map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}}
	c := NewClassifier(s, []string{"c", "a", "b"}, logger.NewNop())
	got, err := c.Classify(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "c", got[0].Label)
	assert.Equal(t, "a", got[1].Label)
	assert.Equal(t, "b", got[2].Label)
}

func TestClassifyTruncates(t *testing.T) {
	s := &tableScorer{}
	c := NewClassifier(s, []string{"a"}, logger.NewNop())
	_, err := c.Classify(context.Background(), strings.Repeat("x", 1500), nil)
	require.NoError(t, err)
	require.Len(t, s.texts, 1)
	assert.Len(t, s.texts[0], 1003)
	assert.True(t, strings.HasSuffix(s.texts[0], "..."))

	short := strings.Repeat("y", 1000)
	_, _ = c.Classify(context.Background(), short, nil)
	assert.Equal(t, short, s.texts[1])
}

func TestClassifyTruncatesByCharacter(t *testing.T) {
	s := &tableScorer{}
	c := NewClassifier(s, []string{"a"}, logger.NewNop())

	wide := strings.Repeat("é", 1000)
	_, err := c.Classify(context.Background(), wide, nil)
	require.NoError(t, err)
	assert.Equal(t, wide, s.texts[0])

	_, err = c.Classify(context.Background(), strings.Repeat("日", 1200), nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("日", 1000)+"...", s.texts[1])
	assert.Equal(t, 1003, utf8.RuneCountInString(s.texts[1]))
}

func TestClassifyErrors(t *testing.T) {
	c := NewClassifier(&tableScorer{}, nil, logger.NewNop())
	_, err := c.Classify(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrNoLabels)

	boom := errors.New("model unavailable")
	c = NewClassifier(&tableScorer{err: boom}, []string{"a"}, logger.NewNop())
	_, err = c.SuggestTags(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestSuggestTagsThresholdAndLimit(t *testing.T) {
	scores := map[string]float64{}
	var labels []string
	for i, l := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		labels = append(labels, l)
		scores[l] = 0.9 - float64(i)*0.1
	}
	c := NewClassifier(&tableScorer{scores: scores}, labels, logger.NewNop())

	got, err := c.SuggestTags(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.Tags)
	assert.Len(t, got.Scores, 8)

	c = NewClassifier(&tableScorer{scores: scores}, labels, logger.NewNop(), WithThreshold(0.65), WithMaxTags(10))
	got, err = c.SuggestTags(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Tags)
}

func TestLabelsRuntimeEdits(t *testing.T) {
	c := NewClassifier(&tableScorer{}, []string{"a", "b", "a", " "}, logger.NewNop())
	assert.Equal(t, []string{"a", "b"}, c.Labels())

	assert.True(t, c.AddLabel("c"))
	assert.False(t, c.AddLabel("c"))
	assert.False(t, c.AddLabel("  "))
	assert.True(t, c.RemoveLabel("a"))
	assert.False(t, c.RemoveLabel("a"))
	assert.Equal(t, []string{"b", "c"}, c.Labels())

	labels := c.Labels()
	labels[0] = "mutated"
	assert.Equal(t, "b", c.Labels()[0])
}

func sectionScorer() *tableScorer {
	return &tableScorer{byText: func(text, label string) float64 {
		switch {
		case strings.HasPrefix(text, "alpha") && label == "finance":
			return 0.9
		case strings.HasPrefix(text, "beta") && label == "finance":
			return 0.1
		case label == "legal":
			return 0.4
		}
		return 0
	}}
}

func TestClassifyBySectionsAverages(t *testing.T) {
	text := "alpha one two beta three four"
	for _, pool := range []bool{false, true} {
		opts := []Option{WithSectionSize(3)}
		if pool {
			p, err := ants.NewPool(2)
			require.NoError(t, err)
			defer p.Release()
			opts = append(opts, WithPool(p))
		}
		c := NewClassifier(sectionScorer(), []string{"legal", "finance"}, logger.NewNop(), opts...)

		res, err := c.ClassifyBySections(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalSections)
		require.Len(t, res.Sections, 2)
		assert.Equal(t, "alpha one two", res.Sections[0].Text)
		assert.Equal(t, 1, res.Sections[1].Index)

		require.Len(t, res.Overall, 2)
		assert.Equal(t, "finance", res.Overall[0].Label)
		assert.InDelta(t, 0.5, res.Overall[0].Score, 1e-9)
		assert.InDelta(t, 0.4, res.Overall[1].Score, 1e-9)
	}
}

func TestSuggestTagsSectioned(t *testing.T) {
	c := NewClassifier(sectionScorer(), []string{"legal", "finance"}, logger.NewNop(),
		WithSectionSize(3), WithSectionedTagging(true), WithThreshold(0.45))
	got, err := c.SuggestTags(context.Background(), "alpha one two beta three four")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance"}, got.Tags)
}

func TestEmbeddingScorerDistribution(t *testing.T) {
	s := NewEmbeddingScorer(embedding.NewHashEncoder(384), 0.05)
	labels := []string{"invoice", "employment contract", "medical record"}

	scores, err := s.Score(context.Background(), "This document is about invoice.", labels)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	var total float64
	for _, sc := range scores {
		total += sc.Score
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, "invoice", scores[0].Label)
	assert.Greater(t, scores[0].Score, scores[1].Score)
	assert.Greater(t, scores[0].Score, scores[2].Score)
}

type fakeLLM struct {
	replies []string
	calls   int
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	reply := f.replies[min(f.calls, len(f.replies)-1)]
	f.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestLLMScorer(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		"not json at all",
		"```json\n{\"invoice\": 0.8, \"contract\": 1.7}\n```",
	}}
	s := NewLLMScorer(llm, logger.NewNop())

	scores, err := s.Score(context.Background(), "amount due", []string{"invoice", "contract", "receipt"})
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, []models.LabelScore{
		{Label: "invoice", Score: 0.8},
		{Label: "contract", Score: 1},
		{Label: "receipt", Score: 0},
	}, scores)
}

func TestLLMScorerGivesUp(t *testing.T) {
	s := NewLLMScorer(&fakeLLM{replies: []string{"nope"}}, logger.NewNop())
	_, err := s.Score(context.Background(), "x", []string{"a"})
	assert.Error(t, err)
}
