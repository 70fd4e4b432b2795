package http

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Catalog facade; it satisfies FeedManager, CatalogBrowser and
	// CatalogAuthenticator
	Catalog interface {
		FeedManager
		CatalogBrowser
		CatalogAuthenticator
	}

	// Storage health
	Database Pinger

	// Audit log, optional
	Audit AuditReader

	// Background tasks, optional
	TaskClient  TaskStatusReader
	Maintenance MaintenanceRunner

	// Application info
	Version string
}
