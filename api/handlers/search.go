package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/api/middleware"
	"github.com/feichai0017/document-intelligence/internal/service/search"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

type SearchHandler struct {
	service SearchService
	logger  logger.Logger
}

func NewSearchHandler(service SearchService, logger logger.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger.Named("search-handler"),
	}
}

type searchRequest struct {
	Query       string   `json:"query" binding:"required"`
	Limit       int      `json:"limit"`
	Threshold   *float64 `json:"threshold"`
	DocumentIDs []string `json:"document_ids"`
	Highlight   bool     `json:"highlight"`
}

type searchResponse struct {
	Query   string       `json:"query"`
	Results []search.Hit `json:"results"`
	Total   int          `json:"total"`
}

func (h *SearchHandler) run(c *gin.Context, semantic bool) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opts := search.Options{
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		DocumentIDs: req.DocumentIDs,
		Highlight:   req.Highlight,
	}
	if semantic {
		none := search.NoThreshold
		opts.Threshold = &none
	}

	hits, err := h.service.Search(c.Request.Context(), middleware.UserID(c), req.Query, opts)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to search documents", err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	c.JSON(http.StatusOK, searchResponse{Query: req.Query, Results: hits, Total: len(hits)})
}

// Query 按相似度阈值检索
func (h *SearchHandler) Query(c *gin.Context) {
	h.run(c, false)
}

// Semantic ranks without a similarity floor.
func (h *SearchHandler) Semantic(c *gin.Context) {
	h.run(c, true)
}

type questionRequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"document_ids"`
}

// QuestionAnswering 基于文档回答问题
func (h *SearchHandler) QuestionAnswering(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c.JSON(http.StatusOK, h.service.Answer(c.Request.Context(), middleware.UserID(c), req.Question, req.DocumentIDs))
}

// Suggestions 搜索建议
func (h *SearchHandler) Suggestions(c *gin.Context) {
	q := c.Query("q")
	c.JSON(http.StatusOK, gin.H{
		"query":       q,
		"suggestions": h.service.Suggestions(c.Request.Context(), middleware.UserID(c), q),
	})
}
