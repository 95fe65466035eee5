package redaction

import (
	"context"
	"errors"
	"sort"

	"github.com/feichai0017/document-intelligence/internal/models"
)

// Recognizer finds sensitive spans in text. Offsets are byte offsets.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]models.Entity, error)
}

// CompositeRecognizer runs several recognizers and merges their spans into
// a non-overlapping set.
type CompositeRecognizer struct {
	recognizers []Recognizer
}

func NewCompositeRecognizer(recognizers ...Recognizer) *CompositeRecognizer {
	return &CompositeRecognizer{recognizers: recognizers}
}

// Recognize fails when any member fails, so the engine can fail open on
// the whole text instead of silently redacting a subset.
func (c *CompositeRecognizer) Recognize(ctx context.Context, text string) ([]models.Entity, error) {
	var all []models.Entity
	var errs []error
	for _, r := range c.recognizers {
		spans, err := r.Recognize(ctx, text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, spans...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return ResolveOverlaps(all), nil
}

// ResolveOverlaps keeps the best span of every overlapping group: higher
// score first, then the longer span, then the earlier one. The result is
// sorted by start offset.
func ResolveOverlaps(spans []models.Entity) []models.Entity {
	if len(spans) < 2 {
		return append([]models.Entity(nil), spans...)
	}
	ranked := append([]models.Entity(nil), spans...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	kept := make([]models.Entity, 0, len(ranked))
	for _, s := range ranked {
		if s.End <= s.Start {
			continue
		}
		overlaps := false
		for _, k := range kept {
			if s.Start < k.End && k.Start < s.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// NewDefaultRecognizer combines the built-in pattern and name recognisers.
func NewDefaultRecognizer() *CompositeRecognizer {
	return NewCompositeRecognizer(NewPatternRecognizer(), NewNameRecognizer())
}
