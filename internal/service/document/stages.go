package document

import (
	"context"
	"io"

	"github.com/feichai0017/document-intelligence/internal/agent/classification"
	"github.com/feichai0017/document-intelligence/internal/agent/extraction"
	"github.com/feichai0017/document-intelligence/internal/agent/redaction"
	"github.com/feichai0017/document-intelligence/internal/models"
)

// Extractor turns raw bytes into text. It reports problems inside the
// result rather than failing.
type Extractor interface {
	Extract(ctx context.Context, src io.ReaderAt, size int64, kind models.MediaKind) extraction.Result
}

// Redactor masks sensitive entities. It fails open.
type Redactor interface {
	Redact(ctx context.Context, text string) redaction.Result
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Tagger interface {
	SuggestTags(ctx context.Context, text string) (classification.Suggestion, error)
}

// Stages are the pipeline steps a job runs, in field order.
type Stages struct {
	Extractor Extractor
	Redactor  Redactor
	Embedder  Embedder
	Tagger    Tagger
}

func (s Stages) validate() error {
	if s.Extractor == nil || s.Redactor == nil || s.Embedder == nil || s.Tagger == nil {
		return errMissingStage
	}
	return nil
}
