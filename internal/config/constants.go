package config

const (
	// DefaultDatabasePath is the default path for the catalog database
	DefaultDatabasePath = "./opdscatalog.db"

	DefaultUserAgent = "opdscatalog/1.0 (+https://github.com/mrlokans/opdscatalog)"
)
