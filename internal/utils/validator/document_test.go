package validator

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)

	res := v.Validate("scan.PNG", pngBytes(t, 200, 300))
	require.True(t, res.IsValid, res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, models.MediaKindImage, res.FileInfo.MediaKind)
	assert.Equal(t, ".png", res.FileInfo.Extension)
	assert.Len(t, res.FileInfo.Hash, 64)

	res = v.Validate("tiny.png", pngBytes(t, 4, 4))
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_DIMENSIONS", res.Errors[0].Code)
}

func TestValidateRejections(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{
		MaxFileSize:  16,
		AllowedTypes: map[string][]string{".pdf": {"application/pdf"}, ".png": {"image/png"}},
	})

	cases := map[string]struct {
		name string
		data []byte
		code string
	}{
		"empty":           {"a.pdf", nil, "EMPTY_FILE"},
		"too large":       {"a.pdf", []byte(strings.Repeat("x", 17)), "FILE_TOO_LARGE"},
		"extension":       {"a.docx", []byte("PK\x03\x04"), "INVALID_FILE_TYPE"},
		"mismatched mime": {"a.pdf", []byte("hello world"), "INVALID_MIME_TYPE"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := v.Validate(tc.name, tc.data)
			require.False(t, res.IsValid)
			assert.Equal(t, tc.code, res.Errors[0].Code)
			assert.ErrorIs(t, res.Err(), ErrInvalidFile)
		})
	}
}

func TestDetectMimeTypeTIFF(t *testing.T) {
	assert.Equal(t, "image/tiff", detectMimeType([]byte("II*\x00rest")))
	assert.Equal(t, "image/tiff", detectMimeType([]byte("MM\x00*rest")))
	assert.Equal(t, "application/pdf", detectMimeType([]byte("%PDF-1.7\n")))
}
