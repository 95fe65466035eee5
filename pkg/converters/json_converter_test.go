package converters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
)

func completedDoc() *models.Document {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.Document{
		ID:           "doc-1",
		Title:        "Lease",
		Filename:     "lease.pdf",
		FileSize:     1234,
		Status:       models.StatusCompleted,
		RedactedText: "Signed by [PERSON]",
		Tags:         []string{"contract"},
		Metadata: models.Metadata{
			ProcessedAt:   &at,
			PageCount:     2,
			EntitiesFound: 1,
			PIISummary:    map[string]int{"PERSON": 1},
			TagScores:     []models.LabelScore{{Label: "contract", Score: 0.8}},
		},
	}
}

func TestConvertCompletedDocument(t *testing.T) {
	doc := completedDoc()
	chunks := []models.Chunk{
		{Index: 0, Text: "Signed by", StartWord: 0, EndWord: 2},
		{Index: 1, Text: "by [PERSON]", StartWord: 1, EndWord: 3, Embedding: []float32{0.5}},
	}

	out, err := NewJSONConverter().Convert(doc, chunks)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", out.DocumentID)
	assert.Equal(t, ".pdf", out.Metadata.FileType)
	assert.Equal(t, 2, out.Metadata.PageCount)
	assert.Equal(t, map[string]float64{"contract": 0.8}, out.Metadata.TagScores)
	assert.True(t, out.Metadata.Redacted)
	assert.Equal(t, *doc.Metadata.ProcessedAt, out.ProcessedAt)
	require.Len(t, out.Content, 2)
	assert.Equal(t, 2, out.Content[1].Position)
	assert.Equal(t, []float32{0.5}, out.Content[1].Embedding)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "extracted")
}

func TestConvertRejectsIncompleteDocuments(t *testing.T) {
	doc := completedDoc()
	doc.Status = models.StatusProcessing
	_, err := NewJSONConverter().Convert(doc, nil)
	assert.Error(t, err)

	_, err = NewJSONConverter().Convert(nil, nil)
	assert.Error(t, err)
}
