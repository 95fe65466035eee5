package classification

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/models"
)

// EmbeddingScorer approximates zero-shot entailment with an embedding
// model: each hypothesis is embedded once, compared to the text by cosine
// and the similarities are turned into a distribution with a tempered
// softmax.
type EmbeddingScorer struct {
	encoder     embedding.Encoder
	temperature float64

	mu         sync.Mutex
	hypotheses map[string][]float32
}

func NewEmbeddingScorer(encoder embedding.Encoder, temperature float64) *EmbeddingScorer {
	if temperature <= 0 {
		temperature = 0.05
	}
	return &EmbeddingScorer{
		encoder:     encoder,
		temperature: temperature,
		hypotheses:  make(map[string][]float32),
	}
}

func (s *EmbeddingScorer) Score(ctx context.Context, text string, labels []string) ([]models.LabelScore, error) {
	textVec, err := s.encoder.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}

	logits := make([]float64, len(labels))
	maxLogit := math.Inf(-1)
	for i, label := range labels {
		hyp, err := s.hypothesis(ctx, label)
		if err != nil {
			return nil, err
		}
		sim, err := embedding.Cosine(textVec, hyp)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", label, err)
		}
		logits[i] = sim / s.temperature
		maxLogit = math.Max(maxLogit, logits[i])
	}

	var total float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		total += logits[i]
	}
	scores := make([]models.LabelScore, len(labels))
	for i, label := range labels {
		scores[i] = models.LabelScore{Label: label, Score: logits[i] / total}
	}
	return scores, nil
}

func (s *EmbeddingScorer) hypothesis(ctx context.Context, label string) ([]float32, error) {
	s.mu.Lock()
	vec, ok := s.hypotheses[label]
	s.mu.Unlock()
	if ok {
		return vec, nil
	}
	vec, err := s.encoder.Encode(ctx, fmt.Sprintf(HypothesisTemplate, label))
	if err != nil {
		return nil, fmt.Errorf("encode hypothesis %q: %w", label, err)
	}
	s.mu.Lock()
	s.hypotheses[label] = vec
	s.mu.Unlock()
	return vec, nil
}
