package mock

import (
	"context"
	"image"
	"strings"
	"sync/atomic"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/models"
)

// Encoder is a deterministic embedding.Encoder.
type Encoder struct {
	EncodeFunc func(ctx context.Context, text string) ([]float32, error)
	// Vectors pins the vector returned for an exact text.
	Vectors map[string][]float32

	fallback *embedding.HashEncoder
	calls    atomic.Int64
}

func NewEncoder(dimension int) *Encoder {
	return &Encoder{
		Vectors:  make(map[string][]float32),
		fallback: embedding.NewHashEncoder(dimension),
	}
}

func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.EncodeFunc != nil {
		return e.EncodeFunc(ctx, text)
	}
	if v, ok := e.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return e.fallback.Encode(ctx, text)
}

func (e *Encoder) CallCount() int { return int(e.calls.Load()) }

// Scorer is a deterministic classification.Scorer.
type Scorer struct {
	ScoreFunc func(ctx context.Context, text string, labels []string) ([]models.LabelScore, error)
	// Hit and Miss are the scores for labels found and not found in the
	// text. They default to 0.9 and 0.05.
	Hit, Miss float64

	calls atomic.Int64
}

func (s *Scorer) Score(ctx context.Context, text string, labels []string) ([]models.LabelScore, error) {
	s.calls.Add(1)
	if s.ScoreFunc != nil {
		return s.ScoreFunc(ctx, text, labels)
	}
	hit, miss := s.Hit, s.Miss
	if hit == 0 {
		hit = 0.9
	}
	if miss == 0 {
		miss = 0.05
	}
	lower := strings.ToLower(text)
	out := make([]models.LabelScore, len(labels))
	for i, l := range labels {
		score := miss
		if strings.Contains(lower, strings.ToLower(l)) {
			score = hit
		}
		out[i] = models.LabelScore{Label: l, Score: score}
	}
	return out, nil
}

func (s *Scorer) CallCount() int { return int(s.calls.Load()) }

// Recognizer is a redaction.Recognizer that finds nothing unless told to.
type Recognizer struct {
	RecognizeFunc func(ctx context.Context, text string) ([]models.Entity, error)
	Err           error

	calls atomic.Int64
}

func (r *Recognizer) Recognize(ctx context.Context, text string) ([]models.Entity, error) {
	r.calls.Add(1)
	if r.RecognizeFunc != nil {
		return r.RecognizeFunc(ctx, text)
	}
	return nil, r.Err
}

func (r *Recognizer) CallCount() int { return int(r.calls.Load()) }

// OCR is an extraction.OCR returning Text for every image.
type OCR struct {
	RecognizeFunc func(ctx context.Context, img image.Image) (string, error)
	Text          string

	calls atomic.Int64
}

func (o *OCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	o.calls.Add(1)
	if o.RecognizeFunc != nil {
		return o.RecognizeFunc(ctx, img)
	}
	return o.Text, nil
}

func (o *OCR) CallCount() int { return int(o.calls.Load()) }
