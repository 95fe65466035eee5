package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/api/middleware"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/repository"
	"github.com/feichai0017/document-intelligence/internal/service/document"
	"github.com/feichai0017/document-intelligence/internal/service/search"
	"github.com/feichai0017/document-intelligence/internal/utils/validator"
	"github.com/feichai0017/document-intelligence/pkg/converters"
	"github.com/feichai0017/document-intelligence/pkg/logger"
	"github.com/feichai0017/document-intelligence/pkg/queue"
)

// DocumentService is the ingestion and document management surface.
type DocumentService interface {
	Submit(ctx context.Context, req document.SubmitRequest) (*document.SubmitResult, error)
	SubmitBatch(ctx context.Context, reqs []document.SubmitRequest) ([]document.BatchItem, error)
	GetStatus(ctx context.Context, requester, jobID string) (*models.JobStatus, error)
	GetDocument(ctx context.Context, requester, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, requester string, status models.Status) ([]*models.Document, error)
	UpdateDocument(ctx context.Context, requester, id string, upd document.DocumentUpdate) (*models.Document, error)
	DeleteDocument(ctx context.Context, requester, id string) error
	Export(ctx context.Context, requester, id string, withEmbeddings bool) (*converters.ProcessedDocument, error)
	ShareDocument(ctx context.Context, requester, id, grantee string, permissions []string) (*models.ShareGrant, error)
	ListShares(ctx context.Context, requester, id string) ([]*models.ShareGrant, error)
}

// SearchService is the retrieval surface.
type SearchService interface {
	Search(ctx context.Context, requester, query string, opts search.Options) ([]search.Hit, error)
	Answer(ctx context.Context, requester, question string, docIDs []string) search.Answer
	Suggestions(ctx context.Context, requester, query string) []string
}

type Handlers struct {
	Document *DocumentHandler
	Search   *SearchHandler
	Health   *HealthHandler
}

func NewHandlers(
	documentService DocumentService,
	searchService SearchService,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, logger),
		Search:   NewSearchHandler(searchService, logger),
		Health:   NewHealthHandler(),
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validator.ErrInvalidFile),
		errors.Is(err, document.ErrInvalidRequest),
		errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, document.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, queue.ErrQueueFull),
		errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.String("user_id", middleware.UserID(c)),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.AbortWithStatusJSON(status, response)
}
