package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/api/handlers"
	"github.com/feichai0017/document-intelligence/api/middleware"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, origins []string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.CORS(origins))
	r.Use(middleware.RequestLogger(log))

	// API 版本组
	v1 := r.Group("/api/v1")

	// 健康检查
	v1.GET("/health", h.Health.Check)

	authed := v1.Group("")
	authed.Use(middleware.RequireUser())

	// 文档路由组
	docs := authed.Group("/documents")
	{
		docs.POST("/upload", h.Document.UploadDocument)
		docs.POST("/batch", h.Document.UploadBatch)
		docs.GET("", h.Document.ListDocuments)
		docs.GET("/:id", h.Document.GetDocument)
		docs.PUT("/:id", h.Document.UpdateDocument)
		docs.DELETE("/:id", h.Document.DeleteDocument)
		docs.GET("/:id/export", h.Document.ExportDocument)
		docs.POST("/:id/share", h.Document.ShareDocument)
		docs.GET("/:id/shares", h.Document.ListShares)
	}

	authed.GET("/jobs/:id", h.Document.GetJobStatus)

	// 检索路由组
	s := authed.Group("/search")
	{
		s.POST("/query", h.Search.Query)
		s.POST("/semantic", h.Search.Semantic)
		s.POST("/question-answering", h.Search.QuestionAnswering)
		s.GET("/suggestions", h.Search.Suggestions)
	}
}
