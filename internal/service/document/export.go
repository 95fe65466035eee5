package document

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-intelligence/internal/agent/embedding"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/converters"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// ChunkEmbedder splits text into overlapping chunks and embeds each one.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, text string, size, overlap int) ([]models.Chunk, error)
}

type exportConfig struct {
	chunkSize    int
	chunkOverlap int
	embedder     ChunkEmbedder
	converter    converters.DocumentConverter
}

func defaultExportConfig() exportConfig {
	return exportConfig{
		chunkSize:    512,
		chunkOverlap: 50,
		converter:    converters.NewJSONConverter(),
	}
}

// WithExport sets the chunking used by Export. A nil embedder disables
// per-chunk vectors.
func WithExport(size, overlap int, embedder ChunkEmbedder) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.export.chunkSize = size
		}
		if overlap >= 0 && overlap < s.export.chunkSize {
			s.export.chunkOverlap = overlap
		}
		s.export.embedder = embedder
	}
}

// Export renders a completed document's redacted text as chunks. The
// requester must own the document or hold a grant for it.
func (s *Service) Export(ctx context.Context, requester, id string, withEmbeddings bool) (*converters.ProcessedDocument, error) {
	doc, err := s.GetDocument(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: document is %s", ErrInvalidStatus, doc.Status)
	}

	var chunks []models.Chunk
	if withEmbeddings && s.export.embedder != nil {
		chunks, err = s.export.embedder.EmbedChunks(ctx, doc.RedactedText, s.export.chunkSize, s.export.chunkOverlap)
	} else {
		chunks, err = embedding.SplitChunks(doc.RedactedText, s.export.chunkSize, s.export.chunkOverlap)
	}
	if err != nil {
		s.logger.Error("Failed to chunk document for export", logger.DocumentID(id), logger.Error(err))
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	out, err := s.export.converter.Convert(doc, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	return out, nil
}
