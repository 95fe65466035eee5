package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/tiff"

	"github.com/feichai0017/document-intelligence/internal/agent/extraction/pdf"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// DocumentValidator checks an upload before it enters the pipeline.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedTypes maps an extension to its accepted sniffed MIME types.
	AllowedTypes map[string][]string
	MinDimension int
	MaxDimension int
	MaxPageCount int
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 << 20,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".tif":  {"image/tiff"},
			".tiff": {"image/tiff"},
		},
		MinDimension: 32,
		MaxDimension: 10000,
		MaxPageCount: 1000,
	}
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string           `json:"filename"`
	Size      int64            `json:"size"`
	MimeType  string           `json:"mimeType"`
	Extension string           `json:"extension"`
	Hash      string           `json:"hash"`
	MediaKind models.MediaKind `json:"mediaKind,omitempty"`
	PageCount int              `json:"pageCount,omitempty"`
}

// ErrInvalidFile is wrapped by the error returned from ValidationResult.Err.
var ErrInvalidFile = errors.New("invalid file")

// Err summarises a failed validation, or returns nil.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalidFile, strings.Join(msgs, "; "))
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{logger: log, config: config}
}

// Validate inspects the upload's name and content.
func (v *DocumentValidator) Validate(filename string, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(filename)),
			MimeType:  detectMimeType(data),
			Hash:      hex.EncodeToString(sum[:]),
		},
	}

	fail := func(errs ...ValidationError) {
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}
	fail(v.performBasicValidation(result.FileInfo)...)
	if result.IsValid {
		fail(v.validateMimeType(result.FileInfo)...)
	}
	if result.IsValid {
		fail(v.performTypeSpecificValidation(data, &result.FileInfo)...)
	}

	if !result.IsValid {
		v.logger.Warn("Upload rejected",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors))
	}
	return result
}

func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError
	if fileInfo.Size == 0 {
		errs = append(errs, ValidationError{Code: "EMPTY_FILE", Message: "file is empty", Field: "size"})
	}
	if fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	if slices.Contains(v.config.AllowedTypes[fileInfo.Extension], fileInfo.MimeType) {
		return nil
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("content type %s does not match extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) performTypeSpecificValidation(data []byte, fileInfo *FileInfo) []ValidationError {
	if fileInfo.MimeType == "application/pdf" {
		fileInfo.MediaKind = models.MediaKindPDF
		return v.validatePDF(data, fileInfo)
	}
	fileInfo.MediaKind = models.MediaKindImage
	return v.validateImage(data)
}

func (v *DocumentValidator) validatePDF(data []byte, fileInfo *FileInfo) []ValidationError {
	fileInfo.PageCount = pdf.PageCount(data)
	if v.config.MaxPageCount > 0 && fileInfo.PageCount > v.config.MaxPageCount {
		return []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("document has %d pages, limit is %d", fileInfo.PageCount, v.config.MaxPageCount),
			Field:   "pages",
		}}
	}
	return nil
}

func (v *DocumentValidator) validateImage(data []byte) []ValidationError {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return []ValidationError{{Code: "CORRUPT_IMAGE", Message: "image header could not be decoded", Field: "content"}}
	}
	short, long := min(cfg.Width, cfg.Height), max(cfg.Width, cfg.Height)
	if short < v.config.MinDimension || long > v.config.MaxDimension {
		return []ValidationError{{
			Code:    "INVALID_DIMENSIONS",
			Message: fmt.Sprintf("image is %dx%d, allowed range is %d to %d pixels", cfg.Width, cfg.Height, v.config.MinDimension, v.config.MaxDimension),
			Field:   "dimensions",
		}}
	}
	return nil
}

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

// detectMimeType sniffs content, adding the TIFF signatures net/http does
// not know.
func detectMimeType(data []byte) string {
	if bytes.HasPrefix(data, tiffLittleEndian) || bytes.HasPrefix(data, tiffBigEndian) {
		return "image/tiff"
	}
	return http.DetectContentType(data)
}
