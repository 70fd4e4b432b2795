package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Optional dependencies left nil disable their routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version)
	feedsController := NewFeedsController(cfg.Catalog, cfg.Catalog)
	browseController := NewBrowseController(cfg.Catalog)
	oauthController := NewOAuthController(cfg.Catalog)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	// Feed definitions
	api.GET("/feeds", feedsController.ListFeeds)
	api.POST("/feeds", feedsController.AddFeed)
	api.GET("/feeds/:id", feedsController.GetFeed)
	api.PUT("/feeds/:id", feedsController.UpdateFeed)
	api.DELETE("/feeds/:id", feedsController.DeleteFeed)
	api.GET("/feeds/:id/browse", feedsController.BrowseFeed)

	// Remote catalogs
	api.GET("/browse", browseController.Browse)
	api.GET("/search", browseController.Search)
	api.POST("/search/resolve", browseController.ResolveSearch)

	// Catalog authentication
	api.POST("/oauth", oauthController.Authenticate)
	api.GET("/oauth/state", oauthController.GetState)
	api.POST("/oauth/logout", oauthController.Logout)

	// Audit log
	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit", auditController.GetAuditEvents)
		api.GET("/audit/:id", auditController.GetAuditEvent)
		api.GET("/feeds/:id/history", auditController.GetFeedHistory)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient, cfg.Maintenance)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.GET("/maintenance", tasksController.MaintenanceStatus)
		api.POST("/maintenance/cleanup", tasksController.RunMaintenance)
	}

	return router
}
