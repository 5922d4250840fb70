package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(OwnerMiddleware())

	health := NewHealthController(cfg.Database, cfg.Version)
	booksController := NewBooksController(cfg.Catalog)
	importsController := NewImportsController(cfg.JobStore, cfg.Reconciler, cfg.TaskClient, cfg.UploadsDir)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Import endpoints
	router.POST("/api/imports", importsController.Create)
	router.GET("/api/imports", importsController.List)
	router.GET("/api/imports/:id", importsController.Get)
	router.GET("/api/imports/:id/errors.csv", importsController.ErrorReport)
	router.PUT("/api/imports/:id/mapping", importsController.UpdateMapping)
	router.POST("/api/imports/:id/start", importsController.Start)
	router.POST("/api/imports/:id/resolutions", importsController.Resolutions)
	router.POST("/api/imports/:id/cancel", importsController.Cancel)

	// Catalog endpoints used by the matching review UI
	router.GET("/api/books/search", booksController.Search)
	router.GET("/api/books/:id", booksController.Get)

	return router
}
