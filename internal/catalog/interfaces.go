package catalog

import (
	"context"

	"github.com/mrlokans/opdscatalog/internal/audit"
	"github.com/mrlokans/opdscatalog/internal/entities"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// FeedStore persists feed definitions.
type FeedStore interface {
	AddFeed(ctx context.Context, feed *entities.OPDSFeed) (*entities.OPDSFeed, error)
	UpdateFeed(ctx context.Context, feed *entities.OPDSFeed) (*entities.OPDSFeed, error)
	DeleteFeed(ctx context.Context, identifier string) error
	GetFeed(ctx context.Context, identifier string) (*entities.OPDSFeed, error)
	FindAllFeeds(ctx context.Context) ([]entities.OPDSFeed, error)
}

// Browser fetches catalog documents.
type Browser interface {
	Browse(ctx context.Context, url string) (*opds.Feed, error)
	SearchTemplate(ctx context.Context, descriptionURL string) (string, bool)
}

// Authenticator manages OAuth sessions for catalog sources.
type Authenticator interface {
	OAuth(ctx context.Context, req oauth2.Request) (bool, error)
	Logout(ctx context.Context, url string) error
	State(url string) oauth2.State
}

// AuditLogger records feed store changes.
type AuditLogger interface {
	LogFeed(action, feedID, title string, err error)
}

// SnapshotSaver keeps a copy of responses that failed to parse.
type SnapshotSaver interface {
	SaveSnapshot(s audit.Snapshot) (string, error)
}
