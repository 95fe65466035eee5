package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/api/middleware"
	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/internal/service/document"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// DefaultMaxUploadBytes caps how much of one uploaded file is read into
// memory. The validator rejects anything larger than its own limit.
const DefaultMaxUploadBytes = 50 << 20

type DocumentHandler struct {
	service  DocumentService
	maxBytes int64
	logger   logger.Logger
}

// DocumentResponse is the client view of a document. It never carries the
// unredacted text or the embedding.
type DocumentResponse struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Filename     string          `json:"filename"`
	FileSize     int64           `json:"file_size"`
	MediaKind    string          `json:"media_kind"`
	Status       string          `json:"status"`
	Tags         []string        `json:"tags"`
	RedactedText string          `json:"redacted_text,omitempty"`
	Metadata     models.Metadata `json:"metadata"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

func toDocumentResponse(d *models.Document, withText bool) DocumentResponse {
	resp := DocumentResponse{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Filename:    d.Filename,
		FileSize:    d.FileSize,
		MediaKind:   string(d.MediaKind),
		Status:      string(d.Status),
		Tags:        d.Tags,
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if withText {
		resp.RedactedText = d.RedactedText
	}
	return resp
}

func NewDocumentHandler(service DocumentService, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:  service,
		maxBytes: DefaultMaxUploadBytes,
		logger:   logger.Named("document-handler"),
	}
}

func (h *DocumentHandler) handleError(c *gin.Context, message string, err error) {
	handleError(c, h.logger, statusFor(err), message, err)
}

func (h *DocumentHandler) readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	// One byte over the cap is enough for the validator to reject it.
	return io.ReadAll(io.LimitReader(file, h.maxBytes+1))
}

// UploadDocument 上传单个文档
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	data, err := h.readUpload(header)
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Failed to read file", err)
		return
	}

	res, err := h.service.Submit(c.Request.Context(), document.SubmitRequest{
		OwnerID:     middleware.UserID(c),
		Filename:    header.Filename,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Data:        data,
	})
	if err != nil {
		h.handleError(c, "Failed to process file", err)
		return
	}
	res.Filename = header.Filename
	c.JSON(http.StatusAccepted, res)
}

// UploadBatch 批量上传文档
func (h *DocumentHandler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		handleError(c, h.logger, http.StatusBadRequest, "No files provided", nil)
		return
	}

	owner := middleware.UserID(c)
	reqs := make([]document.SubmitRequest, 0, len(files))
	for _, fh := range files {
		data, err := h.readUpload(fh)
		if err != nil {
			handleError(c, h.logger, http.StatusBadRequest, "Failed to read file", fmt.Errorf("%s: %w", fh.Filename, err))
			return
		}
		reqs = append(reqs, document.SubmitRequest{OwnerID: owner, Filename: fh.Filename, Data: data})
	}

	items, err := h.service.SubmitBatch(c.Request.Context(), reqs)
	accepted := 0
	for _, it := range items {
		if it.Result != nil {
			accepted++
		}
	}
	if err != nil {
		h.logger.Warn("Some files in batch were rejected", logger.Int("accepted", accepted), logger.Error(err))
	}

	status := http.StatusAccepted
	if accepted == 0 {
		status = statusFor(err)
		if status == http.StatusInternalServerError && len(items) > 0 {
			status = http.StatusBadRequest
		}
	}
	c.JSON(status, gin.H{
		"message":  fmt.Sprintf("Accepted %d of %d documents", accepted, len(files)),
		"accepted": accepted,
		"items":    items,
	})
}

// ListDocuments 列出当前用户的文档
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	status := models.Status(c.Query("status"))
	docs, err := h.service.ListDocuments(c.Request.Context(), middleware.UserID(c), status)
	if err != nil {
		h.handleError(c, "Failed to list documents", err)
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d, false)
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": out,
		"total":     len(out),
	})
}

// GetDocument 获取文档详情
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc, true))
}

type updateDocumentRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// UpdateDocument 更新文档信息
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc, err := h.service.UpdateDocument(c.Request.Context(), middleware.UserID(c), c.Param("id"), document.DocumentUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		h.handleError(c, "Failed to update document", err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc, false))
}

// DeleteDocument 删除文档
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteDocument(c.Request.Context(), middleware.UserID(c), id); err != nil {
		h.handleError(c, "Failed to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Document deleted successfully",
		"documentId": id,
	})
}

// ExportDocument 下载处理结果
func (h *DocumentHandler) ExportDocument(c *gin.Context) {
	id := c.Param("id")
	withEmbeddings, _ := strconv.ParseBool(c.Query("embeddings"))

	result, err := h.service.Export(c.Request.Context(), middleware.UserID(c), id, withEmbeddings)
	if err != nil {
		h.handleError(c, "Failed to export document", err)
		return
	}

	filename := fmt.Sprintf("result_%s.json", id)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.JSON(http.StatusOK, result)
}

type shareRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Permissions []string `json:"permissions"`
}

// ShareDocument 共享文档
func (h *DocumentHandler) ShareDocument(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	grant, err := h.service.ShareDocument(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.UserID, req.Permissions)
	if err != nil {
		h.handleError(c, "Failed to share document", err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// ListShares 列出文档的共享记录
func (h *DocumentHandler) ListShares(c *gin.Context) {
	grants, err := h.service.ListShares(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to list shares", err)
		return
	}
	if grants == nil {
		grants = []*models.ShareGrant{}
	}
	c.JSON(http.StatusOK, gin.H{"shares": grants})
}

// GetJobStatus 获取处理状态
func (h *DocumentHandler) GetJobStatus(c *gin.Context) {
	st, err := h.service.GetStatus(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
