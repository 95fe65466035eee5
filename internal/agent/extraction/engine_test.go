package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

type fakeExtractor struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) ExtractText(context.Context, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakePage encodes its page number in the image width so the fake OCR
// can tell pages apart.
type fakeSource struct {
	mu      sync.Mutex
	pages   int
	dpis    []float64
	failOn  map[int]bool
	closed  bool
	openErr error
}

func (s *fakeSource) Open([]byte) (PageSource, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s, nil
}

func (s *fakeSource) NumPages() int { return s.pages }

func (s *fakeSource) Render(page int, dpi float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dpis = append(s.dpis, dpi)
	if s.failOn[page] {
		return nil, fmt.Errorf("page %d broken", page)
	}
	return image.NewGray(image.Rect(0, 0, page+1, int(dpi))), nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeOCR struct {
	mu    sync.Mutex
	pages map[int]string // keyed by page index
	probe string
	err   error
	calls int
}

func (o *fakeOCR) Recognize(_ context.Context, img image.Image) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	b := img.Bounds()
	if b.Dy() == 150 {
		return o.probe, nil
	}
	return o.pages[b.Dx()-1], nil
}

func newTestEngine(primary, secondary TextExtractor, r Renderer, o OCR) *Engine {
	// identity preprocessing keeps the fake page geometry intact
	return NewEngine(primary, secondary, r, o, logger.NewNop(), WithPreprocessor(nil))
}

var longText = strings.Repeat("digital text layer ", 10)

func extract(e *Engine, kind models.MediaKind, data []byte) Result {
	return e.Extract(context.Background(), bytes.NewReader(data), int64(len(data)), kind)
}

func TestPrimaryTextIsAccepted(t *testing.T) {
	primary := &fakeExtractor{name: "primary", text: longText}
	secondary := &fakeExtractor{name: "secondary", text: "other"}
	ocr := &fakeOCR{}

	res := extract(newTestEngine(primary, secondary, &fakeSource{pages: 1}, ocr), models.MediaKindPDF, []byte("%PDF"))

	assert.Equal(t, strings.TrimSpace(longText), res.Text)
	assert.Equal(t, models.KindDigital, res.Kind)
	assert.Equal(t, MethodDirect, res.Method)
	assert.Equal(t, "primary", res.Extractor)
	assert.Equal(t, 0, secondary.calls)
	assert.Equal(t, 0, ocr.calls)
}

func TestSecondaryUsedWhenPrimaryEmptyOrFailing(t *testing.T) {
	for name, primary := range map[string]*fakeExtractor{
		"empty":   {name: "primary", text: "   "},
		"failing": {name: "primary", err: errors.New("xref broken")},
	} {
		t.Run(name, func(t *testing.T) {
			secondary := &fakeExtractor{name: "secondary", text: longText}
			res := extract(newTestEngine(primary, secondary, nil, nil), models.MediaKindPDF, []byte("%PDF"))
			assert.Equal(t, "secondary", res.Extractor)
			assert.Equal(t, models.KindDigital, res.Kind)
			assert.NoError(t, res.Err)
		})
	}
}

func TestScannedDocumentGoesThroughOCR(t *testing.T) {
	src := &fakeSource{pages: 3}
	ocr := &fakeOCR{
		probe: "a probe with enough text",
		pages: map[int]string{0: "page one", 1: "   ", 2: "page three"},
	}
	e := newTestEngine(&fakeExtractor{name: "p"}, &fakeExtractor{name: "s", text: "short"}, src, ocr)

	res := extract(e, models.MediaKindPDF, []byte("%PDF"))

	assert.Equal(t, "page one\n\npage three", res.Text)
	assert.Equal(t, models.KindScanned, res.Kind)
	assert.Equal(t, MethodOCR, res.Method)
	assert.Equal(t, 3, res.Pages)
	assert.True(t, src.closed)

	require.Len(t, src.dpis, 4)
	assert.Equal(t, 150.0, src.dpis[0])
	for _, dpi := range src.dpis[1:] {
		assert.Equal(t, 300.0, dpi)
	}
}

func TestProbeWithTooLittleTextKeepsShortDirectText(t *testing.T) {
	src := &fakeSource{pages: 2}
	ocr := &fakeOCR{probe: "tiny"}
	e := newTestEngine(&fakeExtractor{name: "p", text: "short title"}, nil, src, ocr)

	res := extract(e, models.MediaKindPDF, []byte("%PDF"))

	assert.Equal(t, "short title", res.Text)
	assert.Equal(t, models.KindDigital, res.Kind)
	assert.Equal(t, 1, ocr.calls)
	assert.Len(t, src.dpis, 1)
}

func TestEmptyOCRFallsBackToDirectText(t *testing.T) {
	src := &fakeSource{pages: 1}
	ocr := &fakeOCR{probe: "scanned page header text"}
	e := newTestEngine(&fakeExtractor{name: "p", text: "stub"}, nil, src, ocr)

	res := extract(e, models.MediaKindPDF, []byte("%PDF"))

	assert.Equal(t, "stub", res.Text)
	assert.Equal(t, models.KindScanned, res.Kind)
	assert.Equal(t, MethodDirect, res.Method)
}

func TestPageFailuresAreSkipped(t *testing.T) {
	src := &fakeSource{pages: 2, failOn: map[int]bool{1: true}}
	ocr := &fakeOCR{probe: "enough probe text here", pages: map[int]string{0: "first"}}
	e := newTestEngine(&fakeExtractor{name: "p"}, nil, src, ocr)

	res := extract(e, models.MediaKindPDF, []byte("%PDF"))

	assert.Equal(t, "first", res.Text)
	assert.Error(t, res.Err)
}

func TestTotalFailureYieldsEmptyText(t *testing.T) {
	e := newTestEngine(
		&fakeExtractor{name: "p", err: errors.New("bad")},
		&fakeExtractor{name: "s", err: errors.New("worse")},
		&fakeSource{openErr: errors.New("cannot open")},
		&fakeOCR{},
	)

	res := extract(e, models.MediaKindPDF, []byte("junk"))

	assert.Empty(t, res.Text)
	assert.Equal(t, MethodNone, res.Method)
	assert.Error(t, res.Err)
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	kind, err := newTestEngine(&fakeExtractor{name: "p", text: longText}, nil, nil, nil).Probe(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindDigital, kind)

	kind, err = newTestEngine(&fakeExtractor{name: "p"}, nil, &fakeSource{pages: 1}, &fakeOCR{probe: "plenty of scanned text"}).Probe(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindScanned, kind)

	_, err = newTestEngine(&fakeExtractor{name: "p"}, nil, nil, nil).Probe(ctx, nil)
	assert.Error(t, err)
}

func TestImageUploadIsOCRed(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 10))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	ocr := &fakeOCR{pages: map[int]string{0: "receipt total 12.50"}}
	res := extract(newTestEngine(nil, nil, nil, ocr), models.MediaKindImage, buf.Bytes())

	assert.Equal(t, "receipt total 12.50", res.Text)
	assert.Equal(t, models.KindImage, res.Kind)
	assert.Equal(t, MethodOCR, res.Method)

	res = extract(newTestEngine(nil, nil, nil, ocr), models.MediaKindImage, []byte("not an image"))
	assert.Empty(t, res.Text)
	assert.Error(t, res.Err)
}
