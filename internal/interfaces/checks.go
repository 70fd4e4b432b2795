package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/opdscatalog/internal/audit"
	"github.com/mrlokans/opdscatalog/internal/catalog"
	"github.com/mrlokans/opdscatalog/internal/crypto"
	"github.com/mrlokans/opdscatalog/internal/database"
	"github.com/mrlokans/opdscatalog/internal/database/credentials"
	"github.com/mrlokans/opdscatalog/internal/database/feeds"
	"github.com/mrlokans/opdscatalog/internal/http"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
	"github.com/mrlokans/opdscatalog/internal/scheduler"
	"github.com/mrlokans/opdscatalog/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// FeedStore implementations
var _ catalog.FeedStore = (*feeds.Repository)(nil)
var _ oauth2.FeedFinder = (*feeds.Repository)(nil)

// CredentialStore implementations
var _ oauth2.CredentialStore = (*credentials.Repository)(nil)

// Storage health
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Catalog Access
// =============================================================================

// HTTP transport shared by the fetcher and the grant client
var _ opds.Doer = (*httpclient.Client)(nil)
var _ oauth2.Doer = (*httpclient.Client)(nil)

// Token handling
var _ opds.TokenProvider = (*oauth2.Manager)(nil)
var _ catalog.Authenticator = (*oauth2.Manager)(nil)
var _ oauth2.Cipher = (*crypto.Vault)(nil)

// Browser implementations
var _ catalog.Browser = (*opds.Fetcher)(nil)

// Facade consumed by the HTTP layer
var _ http.FeedManager = (*catalog.Service)(nil)
var _ http.CatalogBrowser = (*catalog.Service)(nil)
var _ http.CatalogAuthenticator = (*catalog.Service)(nil)

// =============================================================================
// Audit & Maintenance
// =============================================================================

var _ catalog.AuditLogger = (*audit.Service)(nil)
var _ catalog.SnapshotSaver = (*audit.Auditor)(nil)
var _ oauth2.AuditLogger = (*audit.Service)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

var _ http.TaskStatusReader = (*tasks.Client)(nil)
var _ scheduler.Queue = (*tasks.Client)(nil)
var _ http.MaintenanceRunner = (*scheduler.MaintenanceScheduler)(nil)
