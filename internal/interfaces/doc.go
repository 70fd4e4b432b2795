// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - FeedStore: Feed definition persistence (internal/catalog/interfaces.go)
//   - CredentialStore: Encrypted refresh tokens (internal/oauth2/manager.go)
//   - FeedFinder: Links credentials to the feeds served from their origin (internal/oauth2/manager.go)
//
// ## Catalog Access Interfaces
//
//   - Doer: HTTP transport for catalogs and token endpoints (internal/opds, internal/oauth2)
//   - TokenProvider: Bearer tokens and silent refresh (internal/opds/fetcher.go)
//   - Browser: Fetch and parse a catalog page (internal/catalog/interfaces.go)
//   - Authenticator: Per-source session management (internal/catalog/interfaces.go)
//
// ## HTTP Controller Interfaces
//
// Each controller declares the slice of the catalog facade it needs
// (internal/http/stores.go): FeedManager, CatalogBrowser, CatalogAuthenticator,
// AuditReader, TaskStatusReader, MaintenanceRunner.
//
// # Adding a New Catalog Format
//
// To support another catalog serialization:
//
//  1. Add a parser in internal/opds/ returning *Feed
//
//     func parseMyFormat(body []byte, base *url.URL) (*Feed, error)
//
//  2. Dispatch to it from parseDocument in fetcher.go
//
//  3. Report its search template media type from Feed.PrimaryType
//
// # Adding a New Background Task
//
//  1. Define the task type and processor in internal/tasks/
//
//     type MyTask struct{ ... }
//
//     func (t MyTask) Config() backlite.QueueConfig
//
//  2. Register its queue in entrypoint.go
//
//  3. Enqueue it from a scheduler or controller
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
