package api

import (
	"github.com/fyerfyer/doc-summarizer/api/handler"
	"github.com/fyerfyer/doc-summarizer/api/middleware"
	"github.com/fyerfyer/doc-summarizer/api/model"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	summaryHandler *handler.SummaryHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	// 注册自定义校验规则
	model.RegisterValidations()

	// 创建默认的Gin路由引擎
	router := gin.Default()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	// 创建API分组
	api := router.Group("/api")
	{
		// 文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 获取文档摘要 - GET /api/documents/:id/summary
			docGroup.GET("/:id/summary", docHandler.GetDocumentSummary)

			// 获取文档关联任务 - GET /api/documents/:id/tasks
			docGroup.GET("/:id/tasks", taskHandler.GetDocumentTasks)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)
		}

		// 原始文本摘要API - POST /api/summarize
		api.POST("/summarize", summaryHandler.SummarizeText)

		// 任务管理API
		taskGroup := api.Group("/tasks")
		{
			// 获取任务状态 - GET /api/tasks/:id
			taskGroup.GET("/:id", taskHandler.GetTaskStatus)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}
