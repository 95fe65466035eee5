// Package redaction detects sensitive entities and replaces them with
// type placeholders.
package redaction

import (
	"context"
	"sort"
	"strings"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// Result is the outcome of one redaction pass. When Degraded is set the
// recognizer failed, Text is the input unchanged and Cause says why.
type Result struct {
	Text          string
	Entities      []models.Entity
	Counts        map[string]int
	EntitiesFound int
	Sensitive     bool
	Degraded      bool
	Cause         error
}

type Engine struct {
	recognizer         Recognizer
	placeholders       map[string]string
	defaultPlaceholder string
	sensitiveThreshold int
	logger             logger.Logger
}

type Option func(*Engine)

// WithPlaceholders replaces the entity type to token mapping.
func WithPlaceholders(m map[string]string) Option {
	return func(e *Engine) {
		e.placeholders = make(map[string]string, len(m))
		for k, v := range m {
			e.placeholders[k] = v
		}
	}
}

// WithDefaultPlaceholder redacts unmapped types with token instead of
// passing them through.
func WithDefaultPlaceholder(token string) Option {
	return func(e *Engine) {
		e.defaultPlaceholder = token
	}
}

func WithSensitiveThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sensitiveThreshold = n
		}
	}
}

func NewEngine(recognizer Recognizer, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		recognizer: recognizer,
		placeholders: map[string]string{
			"PERSON":        "[PERSON]",
			"EMAIL_ADDRESS": "[EMAIL]",
			"PHONE_NUMBER":  "[PHONE]",
		},
		sensitiveThreshold: 5,
		logger:             log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Detect returns the non-overlapping spans found in text.
func (e *Engine) Detect(ctx context.Context, text string) ([]models.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	spans, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}
	return ResolveOverlaps(validSpans(spans, len(text))), nil
}

// IsSensitive reports whether text holds at least the threshold number
// of entities.
func (e *Engine) IsSensitive(ctx context.Context, text string) (bool, error) {
	spans, err := e.Detect(ctx, text)
	if err != nil {
		return false, err
	}
	return len(spans) >= e.sensitiveThreshold, nil
}

// Redact replaces every mapped span with its placeholder. It never fails:
// a recognizer error returns the text unredacted with Degraded set.
func (e *Engine) Redact(ctx context.Context, text string) Result {
	spans, err := e.Detect(ctx, text)
	if err != nil {
		e.logger.Warn("Redaction degraded, returning text unredacted", logger.Error(err))
		return Result{Text: text, Counts: map[string]int{}, Degraded: true, Cause: err}
	}

	counts := make(map[string]int)
	for _, s := range spans {
		counts[s.Type]++
	}

	var b strings.Builder
	b.Grow(len(text))
	entities := make([]models.Entity, 0, len(spans))
	cursor := 0
	for _, s := range spans {
		token, ok := e.placeholders[s.Type]
		if !ok {
			if e.defaultPlaceholder == "" {
				continue
			}
			token = e.defaultPlaceholder
		}
		b.WriteString(text[cursor:s.Start])
		b.WriteString(token)
		cursor = s.End

		s.Text = text[s.Start:s.End]
		s.Replacement = token
		entities = append(entities, s)
	}
	b.WriteString(text[cursor:])

	res := Result{
		Text:          b.String(),
		Entities:      entities,
		Counts:        counts,
		EntitiesFound: len(entities),
		Sensitive:     len(spans) >= e.sensitiveThreshold,
	}
	if len(spans) > 0 {
		e.logger.Debug("Redaction applied",
			logger.Int("detected", len(spans)),
			logger.Int("redacted", res.EntitiesFound),
			logger.Any("counts", counts),
		)
	}
	return res
}

// SortedTypes lists the entity types of a count map in a stable order.
func SortedTypes(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validSpans(spans []models.Entity, n int) []models.Entity {
	out := spans[:0:0]
	for _, s := range spans {
		if s.Start >= 0 && s.End <= n && s.Start < s.End {
			out = append(out, s)
		}
	}
	return out
}
