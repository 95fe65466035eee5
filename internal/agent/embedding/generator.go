// Package embedding turns text into fixed-dimension vectors and compares
// them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidChunking   = errors.New("invalid chunking parameters")
	ErrEmptyText         = errors.New("empty text")
)

// Encoder maps one text to a vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// BatchEncoder is implemented by encoders that can embed many texts in
// one call.
type BatchEncoder interface {
	Encoder
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator embeds whole documents and chunks, enforcing a single
// dimension across the corpus.
type Generator struct {
	encoder   Encoder
	dimension int
	logger    logger.Logger
}

func NewGenerator(encoder Encoder, dimension int, log logger.Logger) *Generator {
	return &Generator{encoder: encoder, dimension: dimension, logger: log}
}

// Dimension is the configured vector length.
func (g *Generator) Dimension() int { return g.dimension }

// Embed encodes text with a single call.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vec, err := g.encoder.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := g.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedChunks splits text into overlapping windows and embeds each one.
func (g *Generator) EmbedChunks(ctx context.Context, text string, size, overlap int) ([]models.Chunk, error) {
	chunks, err := SplitChunks(text, size, overlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if batch, ok := g.encoder.(BatchEncoder); ok {
		if vectors, err = batch.EncodeBatch(ctx, texts); err != nil {
			return nil, fmt.Errorf("encode batch: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("encode batch: got %d vectors for %d chunks", len(vectors), len(texts))
		}
	} else {
		vectors = make([][]float32, len(texts))
		for i, t := range texts {
			if vectors[i], err = g.encoder.Encode(ctx, t); err != nil {
				return nil, fmt.Errorf("encode chunk %d: %w", i, err)
			}
		}
	}

	for i := range chunks {
		if err := g.check(vectors[i]); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks[i].Embedding = vectors[i]
	}
	g.logger.Debug("Embedded chunks", logger.Int("chunks", len(chunks)))
	return chunks, nil
}

func (g *Generator) check(vec []float32) error {
	if g.dimension > 0 && len(vec) != g.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), g.dimension)
	}
	return nil
}
