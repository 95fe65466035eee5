package converters

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/feichai0017/document-intelligence/internal/models"
)

// DocumentConverter turns a processed document into an export format.
type DocumentConverter interface {
	Convert(doc *models.Document, chunks []models.Chunk) (*ProcessedDocument, error)
}

// ProcessedDocument is the downloadable form of a completed document. It
// only ever carries redacted text.
type ProcessedDocument struct {
	DocumentID  string           `json:"documentId"`
	Title       string           `json:"title"`
	Status      string           `json:"status"`
	Content     []ChunkContent   `json:"content"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

type ChunkContent struct {
	Text      string    `json:"text"`
	Position  int       `json:"position"`
	StartWord int       `json:"startWord"`
	EndWord   int       `json:"endWord"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type DocumentMetadata struct {
	FileName         string             `json:"fileName"`
	FileType         string             `json:"fileType"`
	FileSize         int64              `json:"fileSize"`
	PageCount        int                `json:"pageCount,omitempty"`
	DocumentKind     string             `json:"documentKind,omitempty"`
	ExtractionMethod string             `json:"extractionMethod,omitempty"`
	Tags             []string           `json:"tags"`
	TagScores        map[string]float64 `json:"tagScores,omitempty"`
	EntitiesFound    int                `json:"entitiesFound"`
	PIISummary       map[string]int     `json:"piiSummary,omitempty"`
	Sensitive        bool               `json:"isSensitive"`
	Redacted         bool               `json:"redacted"`
}

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(doc *models.Document, chunks []models.Chunk) (*ProcessedDocument, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document to convert")
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("document %s is %s, not completed", doc.ID, doc.Status)
	}

	out := &ProcessedDocument{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Status:     string(doc.Status),
		Content:    make([]ChunkContent, 0, len(chunks)),
		Metadata: DocumentMetadata{
			FileName:         doc.Filename,
			FileType:         filepath.Ext(doc.Filename),
			FileSize:         doc.FileSize,
			PageCount:        doc.Metadata.PageCount,
			DocumentKind:     string(doc.Metadata.DocumentKind),
			ExtractionMethod: doc.Metadata.ExtractionMethod,
			Tags:             append([]string{}, doc.Tags...),
			EntitiesFound:    doc.Metadata.EntitiesFound,
			PIISummary:       doc.Metadata.PIISummary,
			Sensitive:        doc.Metadata.Sensitive,
			Redacted:         !doc.Metadata.RedactionDegraded,
		},
		ProcessedAt: doc.UpdatedAt,
	}
	if doc.Metadata.ProcessedAt != nil {
		out.ProcessedAt = *doc.Metadata.ProcessedAt
	}
	if len(doc.Metadata.TagScores) > 0 {
		out.Metadata.TagScores = make(map[string]float64, len(doc.Metadata.TagScores))
		for _, s := range doc.Metadata.TagScores {
			out.Metadata.TagScores[s.Label] = s.Score
		}
	}

	for i, chunk := range chunks {
		out.Content = append(out.Content, ChunkContent{
			Text:      chunk.Text,
			Position:  i + 1,
			StartWord: chunk.StartWord,
			EndWord:   chunk.EndWord,
			Embedding: chunk.Embedding,
		})
	}
	return out, nil
}
