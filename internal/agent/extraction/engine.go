// Package extraction turns raw document bytes into plain text. Digital
// PDFs are read through their text layer; scans and images go through
// rendering, preprocessing and OCR.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-intelligence/internal/agent/extraction/imageproc"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// TextExtractor reads a document's embedded text layer.
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// PageSource is an opened, renderable document. Pages are zero based.
type PageSource interface {
	NumPages() int
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Renderer opens documents for rasterisation.
type Renderer interface {
	Open(data []byte) (PageSource, error)
}

// OCR recognises the text in one image.
type OCR interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

type Method string

const (
	MethodDirect Method = "direct"
	MethodOCR    Method = "ocr"
	MethodNone   Method = "none"
)

// Result is what extraction produced. Err carries the last failure seen
// for diagnostics; the text is still usable when it is set.
type Result struct {
	Text      string
	Kind      models.DocumentKind
	Method    Method
	Extractor string
	Pages     int
	Err       error
}

// Config holds the extraction thresholds.
type Config struct {
	OCRDPI         float64
	ProbeDPI       float64
	MinDirectChars int
	MinProbeChars  int
	PageWorkers    int
}

func DefaultConfig() Config {
	return Config{
		OCRDPI:         300,
		ProbeDPI:       150,
		MinDirectChars: 50,
		MinProbeChars:  10,
		PageWorkers:    4,
	}
}

type Engine struct {
	primary    TextExtractor
	secondary  TextExtractor
	renderer   Renderer
	ocr        OCR
	preprocess imageproc.Preprocessor
	cfg        Config
	logger     logger.Logger
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

func WithPreprocessor(p imageproc.Preprocessor) Option {
	return func(e *Engine) {
		e.preprocess = p
	}
}

// NewEngine wires the decoders and the OCR path. Any of them may be nil,
// the engine then skips that step.
func NewEngine(primary, secondary TextExtractor, renderer Renderer, ocr OCR, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		primary:    primary,
		secondary:  secondary,
		renderer:   renderer,
		ocr:        ocr,
		preprocess: imageproc.DefaultChain(1),
		cfg:        DefaultConfig(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.PageWorkers < 1 {
		e.cfg.PageWorkers = 1
	}
	return e
}

// Extract never fails: on total failure the result text is empty.
func (e *Engine) Extract(ctx context.Context, src io.ReaderAt, size int64, kind models.MediaKind) Result {
	data, err := io.ReadAll(io.NewSectionReader(src, 0, size))
	if err != nil {
		e.logger.Error("Failed to read document", logger.Error(err))
		return Result{Kind: models.KindUnknown, Method: MethodNone, Err: err}
	}

	var res Result
	switch kind {
	case models.MediaKindImage:
		res = e.extractImage(ctx, data)
	default:
		res = e.extractPDF(ctx, data)
	}

	e.logger.Info("Extraction finished",
		logger.String("kind", string(res.Kind)),
		logger.String("method", string(res.Method)),
		logger.String("extractor", res.Extractor),
		logger.Int("pages", res.Pages),
		logger.Int("chars", len(res.Text)),
	)
	return res
}

func (e *Engine) extractPDF(ctx context.Context, data []byte) Result {
	direct, name, derr := e.directText(ctx, data)
	res := Result{
		Text:      direct,
		Kind:      models.KindDigital,
		Method:    MethodDirect,
		Extractor: name,
		Err:       derr,
	}
	if direct == "" {
		res.Method = MethodNone
	}
	if e.longEnough(direct) {
		return res
	}

	if e.renderer == nil || e.ocr == nil {
		return res
	}
	doc, err := e.renderer.Open(data)
	if err != nil {
		e.logger.Warn("Cannot render document, keeping direct text", logger.Error(err))
		res.Err = err
		return res
	}
	defer doc.Close()
	res.Pages = doc.NumPages()

	scanned, err := e.probe(ctx, doc)
	if err != nil {
		e.logger.Warn("Scan probe failed", logger.Error(err))
		res.Err = err
		return res
	}
	if !scanned {
		return res
	}

	res.Kind = models.KindScanned
	text, err := e.ocrPages(ctx, doc)
	if err != nil {
		res.Err = err
	}
	if text == "" {
		e.logger.Warn("OCR produced no text", logger.Int("pages", res.Pages))
		return res
	}
	res.Text, res.Method, res.Extractor = text, MethodOCR, "ocr"
	return res
}

// directText tries the primary decoder and falls back to the secondary
// when the primary yields nothing.
func (e *Engine) directText(ctx context.Context, data []byte) (string, string, error) {
	var lastErr error
	for _, ex := range []TextExtractor{e.primary, e.secondary} {
		if ex == nil {
			continue
		}
		text, err := ex.ExtractText(ctx, data)
		if err != nil {
			e.logger.Debug("Direct text extractor failed", logger.String("extractor", ex.Name()), logger.Error(err))
			lastErr = err
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, ex.Name(), nil
		}
	}
	return "", "", lastErr
}

func (e *Engine) longEnough(text string) bool {
	return len(strings.TrimSpace(text)) > e.cfg.MinDirectChars
}

// probe OCRs the first page at low resolution to decide whether the
// document is a scan worth a full OCR pass.
func (e *Engine) probe(ctx context.Context, doc PageSource) (bool, error) {
	if doc.NumPages() == 0 {
		return false, nil
	}
	img, err := doc.Render(0, e.cfg.ProbeDPI)
	if err != nil {
		return false, err
	}
	text, err := e.ocr.Recognize(ctx, img)
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(text)) > e.cfg.MinProbeChars, nil
}

// Probe classifies a PDF as digital or scanned without a full OCR pass.
func (e *Engine) Probe(ctx context.Context, data []byte) (models.DocumentKind, error) {
	direct, _, _ := e.directText(ctx, data)
	if e.longEnough(direct) {
		return models.KindDigital, nil
	}
	if e.renderer == nil || e.ocr == nil {
		return models.KindUnknown, errors.New("no renderer or ocr configured")
	}
	doc, err := e.renderer.Open(data)
	if err != nil {
		return models.KindUnknown, err
	}
	defer doc.Close()

	scanned, err := e.probe(ctx, doc)
	if err != nil {
		return models.KindUnknown, err
	}
	if scanned {
		return models.KindScanned, nil
	}
	return models.KindDigital, nil
}

// ocrPages renders, cleans and recognises every page. Page failures are
// logged and leave that page empty; only cancellation aborts the pass.
func (e *Engine) ocrPages(ctx context.Context, doc PageSource) (string, error) {
	n := doc.NumPages()
	results := make([]string, n)
	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i := 0; i < n; i++ {
		page := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := doc.Render(page, e.cfg.OCRDPI)
			if err != nil {
				failed.Add(1)
				e.logger.Warn("Page render failed", logger.Int("page", page+1), logger.Error(err))
				return nil
			}
			text, err := e.recognize(gctx, img)
			if err != nil {
				failed.Add(1)
				e.logger.Warn("Page OCR failed", logger.Int("page", page+1), logger.Error(err))
				return nil
			}
			results[page] = strings.TrimSpace(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	pages := make([]string, 0, n)
	for _, r := range results {
		if r != "" {
			pages = append(pages, r)
		}
	}
	var err error
	if f := failed.Load(); f > 0 {
		err = fmt.Errorf("%d of %d pages failed ocr", f, n)
	}
	return strings.Join(pages, "\n\n"), err
}

func (e *Engine) recognize(ctx context.Context, img image.Image) (string, error) {
	if e.preprocess != nil {
		cleaned, err := e.preprocess.Process(img)
		if err != nil {
			e.logger.Debug("Preprocessing failed, using raw page", logger.Error(err))
		} else {
			img = cleaned
		}
	}
	return e.ocr.Recognize(ctx, img)
}

func (e *Engine) extractImage(ctx context.Context, data []byte) Result {
	res := Result{Kind: models.KindImage, Method: MethodNone, Pages: 1}
	if e.ocr == nil {
		res.Err = errors.New("no ocr configured")
		return res
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		res.Err = fmt.Errorf("decode image: %w", err)
		e.logger.Warn("Cannot decode image", logger.Error(err))
		return res
	}
	text, err := e.recognize(ctx, img)
	if err != nil {
		res.Err = err
		e.logger.Warn("Image OCR failed", logger.Error(err))
		return res
	}
	if text = strings.TrimSpace(text); text != "" {
		res.Text, res.Method, res.Extractor = text, MethodOCR, "ocr"
	}
	return res
}
