package mock

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/feichai0017/document-intelligence/internal/agent/extraction"
	"github.com/feichai0017/document-intelligence/internal/models"
)

// Extractor reads the uploaded bytes back as text, so tests can upload
// plain strings in place of PDFs. A leading "%PDF-" header line is dropped,
// letting the text pass upload validation as a PDF.
type Extractor struct {
	ExtractFunc func(ctx context.Context, src io.ReaderAt, size int64, kind models.MediaKind) extraction.Result

	calls atomic.Int64
}

func (e *Extractor) Extract(ctx context.Context, src io.ReaderAt, size int64, kind models.MediaKind) extraction.Result {
	e.calls.Add(1)
	if e.ExtractFunc != nil {
		return e.ExtractFunc(ctx, src, size, kind)
	}
	buf := make([]byte, size)
	n, err := src.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return extraction.Result{Kind: models.KindUnknown, Method: extraction.MethodNone, Err: err}
	}
	text := string(buf[:n])
	if strings.HasPrefix(text, "%PDF-") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}
	if strings.TrimSpace(text) == "" {
		return extraction.Result{Kind: models.KindUnknown, Method: extraction.MethodNone}
	}
	return extraction.Result{
		Text:      text,
		Kind:      models.KindDigital,
		Method:    extraction.MethodDirect,
		Extractor: "mock",
		Pages:     1,
	}
}

func (e *Extractor) CallCount() int { return int(e.calls.Load()) }
