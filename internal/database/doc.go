// Package database provides the data access layer for the catalog client.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, SQLite durability settings, migrations
//	├── feeds/           # Feed Store: catalog feed CRUD with credential cascade
//	├── credentials/     # OAuth credentials (encrypted refresh tokens only)
//	└── audit/           # Audit trail of feed and auth operations
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./opds-catalog.db")
//
//	feedsRepo := feeds.NewRepository(db.DB)
//	credsRepo := credentials.NewRepository(db.DB)
//
//	feed, err := feedsRepo.AddFeed(ctx, &entities.OPDSFeed{Title: "Public Library", URL: "https://lib.example/opds"})
//
// # Ownership
//
// The feeds repository owns the lifetime of both feeds and credentials: deleting a
// feed removes every credential whose FeedIdentifier references it, inside the same
// transaction.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add the entity to the AutoMigrate list in database.go
//  5. Add compile-time interface check in internal/interfaces
package database
