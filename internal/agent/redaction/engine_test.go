package redaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/config"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

type stubRecognizer struct {
	spans []models.Entity
	err   error
}

func (s stubRecognizer) Recognize(context.Context, string) ([]models.Entity, error) {
	return s.spans, s.err
}

func newDefaultEngine(log logger.Logger) *Engine {
	return NewEngine(NewDefaultRecognizer(), log, WithPlaceholders(config.DefaultPlaceholders))
}

func TestRedactNameAndEmail(t *testing.T) {
	e := newDefaultEngine(logger.NewNop())

	res := e.Redact(context.Background(), "Contact John Doe at john@example.com")

	assert.Equal(t, "Contact [PERSON] at [EMAIL]", res.Text)
	assert.Equal(t, 2, res.EntitiesFound)
	assert.Equal(t, map[string]int{"PERSON": 1, "EMAIL_ADDRESS": 1}, res.Counts)
	assert.False(t, res.Sensitive)
	assert.False(t, res.Degraded)

	require.Len(t, res.Entities, 2)
	assert.Equal(t, "John Doe", res.Entities[0].Text)
	assert.Equal(t, "[PERSON]", res.Entities[0].Replacement)
	assert.Equal(t, "john@example.com", res.Entities[1].Text)
}

func TestRedactIsStableOnRedactedText(t *testing.T) {
	e := newDefaultEngine(logger.NewNop())
	ctx := context.Background()
	inputs := []string{
		"Contact John Doe at john@example.com",
		"Dr. Sarah Connor called from 555-123-4567 on 2024-03-01 about card 4111 1111 1111 1111",
		"Server 10.0.0.12 belongs to Michael Brown, SSN 123-45-6789",
	}
	for _, in := range inputs {
		first := e.Redact(ctx, in)
		require.NotZero(t, first.EntitiesFound, in)

		second := e.Redact(ctx, first.Text)
		for typ := range first.Counts {
			assert.Zero(t, second.Counts[typ], "type %s found again in %q", typ, first.Text)
		}
		assert.Equal(t, first.Text, second.Text)
	}
}

func TestRedactFailsOpen(t *testing.T) {
	log := logger.NewTestLogger()
	e := NewEngine(stubRecognizer{err: errors.New("model unavailable")}, log)

	res := e.Redact(context.Background(), "Contact John Doe")

	assert.Equal(t, "Contact John Doe", res.Text)
	assert.True(t, res.Degraded)
	assert.EqualError(t, res.Cause, "model unavailable")
	assert.Zero(t, res.EntitiesFound)
	assert.Empty(t, res.Entities)
	assert.True(t, log.HasEntry("WARN", "Redaction degraded, returning text unredacted"))
}

func TestUnmappedTypesPassThrough(t *testing.T) {
	text := "see https://example.com for Jane"
	spans := []models.Entity{
		{Type: "URL", Start: 4, End: 23, Score: 0.9},
		{Type: "PERSON", Start: 28, End: 32, Score: 0.9},
	}

	res := NewEngine(stubRecognizer{spans: spans}, logger.NewNop()).Redact(context.Background(), text)
	assert.Equal(t, "see https://example.com for [PERSON]", res.Text)
	assert.Equal(t, 1, res.EntitiesFound)
	assert.Equal(t, 1, res.Counts["URL"])

	res = NewEngine(stubRecognizer{spans: spans}, logger.NewNop(), WithDefaultPlaceholder("[REDACTED]")).
		Redact(context.Background(), text)
	assert.Equal(t, "see [REDACTED] for [PERSON]", res.Text)
	assert.Equal(t, 2, res.EntitiesFound)
}

func TestSensitiveThreshold(t *testing.T) {
	emails := strings.Repeat("write to someone@example.com and ", 5)
	ctx := context.Background()

	e := newDefaultEngine(logger.NewNop())
	res := e.Redact(ctx, emails)
	assert.Equal(t, 5, res.Counts["EMAIL_ADDRESS"])
	assert.True(t, res.Sensitive)

	sensitive, err := e.IsSensitive(ctx, emails)
	require.NoError(t, err)
	assert.True(t, sensitive)

	strict := NewEngine(NewDefaultRecognizer(), logger.NewNop(), WithSensitiveThreshold(6))
	assert.False(t, strict.Redact(ctx, emails).Sensitive)
}

func TestOutOfRangeSpansAreDropped(t *testing.T) {
	spans := []models.Entity{
		{Type: "PERSON", Start: 0, End: 4, Score: 1},
		{Type: "PERSON", Start: 2, End: 99, Score: 1},
		{Type: "PERSON", Start: 3, End: 3, Score: 1},
	}
	res := NewEngine(stubRecognizer{spans: spans}, logger.NewNop()).Redact(context.Background(), "Jane here")
	assert.Equal(t, "[PERSON] here", res.Text)
}

func TestEmptyTextHasNoEntities(t *testing.T) {
	res := newDefaultEngine(logger.NewNop()).Redact(context.Background(), "  ")
	assert.Equal(t, "  ", res.Text)
	assert.Zero(t, res.EntitiesFound)
	assert.False(t, res.Degraded)
}

func TestSortedTypes(t *testing.T) {
	assert.Equal(t, []string{"EMAIL_ADDRESS", "PERSON"}, SortedTypes(map[string]int{"PERSON": 1, "EMAIL_ADDRESS": 2}))
}
