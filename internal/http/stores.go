package http

import (
	"context"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/opdscatalog/internal/catalog"
	"github.com/mrlokans/opdscatalog/internal/entities"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// Each controller declares the narrow slice of the catalog service it uses.

// FeedManager provides CRUD access to stored feed definitions.
type FeedManager interface {
	GetFeed(ctx context.Context, id string) (*entities.OPDSFeed, error)
	FindAllFeeds(ctx context.Context) ([]entities.OPDSFeed, error)
	AddFeed(ctx context.Context, in catalog.FeedInput) (*entities.OPDSFeed, error)
	UpdateFeed(ctx context.Context, in catalog.FeedInput) (*entities.OPDSFeed, error)
	DeleteFeed(ctx context.Context, id string) error
}

// CatalogBrowser fetches remote catalogs.
type CatalogBrowser interface {
	Browse(ctx context.Context, url string) (*opds.Feed, error)
	BrowseFeed(ctx context.Context, id string) (*opds.Feed, error)
	Search(ctx context.Context, url, query string) (*catalog.SearchResult, error)
	ResolveSearch(ctx context.Context, links []opds.SearchLink, query, preferredType string) (string, bool)
}

// CatalogAuthenticator manages catalog sessions.
type CatalogAuthenticator interface {
	OAuth(ctx context.Context, req oauth2.Request) (bool, error)
	Logout(ctx context.Context, url string) error
	AuthState(url string) oauth2.State
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	GetEvents(limit, offset int) ([]entities.AuditEvent, int64, error)
	GetEventsByType(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error)
	GetFeedHistory(feedID string, limit int) ([]entities.AuditEvent, error)
	GetEvent(id uint) (*entities.AuditEvent, error)
}

// TaskStatusReader reports background task progress.
type TaskStatusReader interface {
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// MaintenanceRunner enqueues retention cleanup on demand.
type MaintenanceRunner interface {
	RunNow(ctx context.Context) ([]string, error)
	IsRunning() bool
	GetNextRunTime() *time.Time
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping() error
}
