package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Catalog
		OAuth
		Audit
		Global
		Database
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Catalog struct {
		UserAgent    string
		Timeout      time.Duration
		MaxRedirects int
		MaxBodyBytes int64
		RateLimit    float64 // Requests per second per host, 0 disables limiting
		RateBurst    int
	}
	OAuth struct {
		// Default key material for sessions whose requests carry none
		EncryptionKeyHex string
		EncryptionIVHex  string
		RefreshMargin    time.Duration // Treat tokens expiring within this window as expired
	}
	Audit struct {
		Dir             string // Malformed feed snapshots, disabled when empty
		RetentionDays   int    // Days to keep audit events (default: 30)
		CleanupEnabled  bool
		CleanupSchedule string // Cron format: "0 3 * * *" = daily at 03:00
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration // Stuck tasks return to the queue after this
		CleanupInterval time.Duration // How often finished tasks are purged
	}
)

// loadDotEnv reads an optional .env file into the process environment.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Println("Warning: .env file exists but couldn't be loaded:", err)
		}
	}
}

func NewConfig() *Config {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Catalog fetching defaults
	v.SetDefault("catalog_user_agent", DefaultUserAgent)
	v.SetDefault("catalog_timeout", "30s")
	v.SetDefault("catalog_max_redirects", 10)
	v.SetDefault("catalog_max_body_bytes", 20<<20)
	v.SetDefault("catalog_rate_limit", 5)
	v.SetDefault("catalog_rate_burst", 10)

	// OAuth defaults
	v.SetDefault("opds_auth_encryption_key_hex", "")
	v.SetDefault("opds_auth_encryption_iv_hex", "")
	v.SetDefault("oauth_refresh_margin", "30s")

	// Audit defaults
	v.SetDefault("audit_dir", "")
	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("audit_cleanup_enabled", true)
	v.SetDefault("audit_cleanup_schedule", "0 3 * * *")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Catalog: Catalog{
			UserAgent:    v.GetString("CATALOG_USER_AGENT"),
			Timeout:      v.GetDuration("CATALOG_TIMEOUT"),
			MaxRedirects: v.GetInt("CATALOG_MAX_REDIRECTS"),
			MaxBodyBytes: v.GetInt64("CATALOG_MAX_BODY_BYTES"),
			RateLimit:    v.GetFloat64("CATALOG_RATE_LIMIT"),
			RateBurst:    v.GetInt("CATALOG_RATE_BURST"),
		},
		OAuth: OAuth{
			EncryptionKeyHex: v.GetString("OPDS_AUTH_ENCRYPTION_KEY_HEX"),
			EncryptionIVHex:  v.GetString("OPDS_AUTH_ENCRYPTION_IV_HEX"),
			RefreshMargin:    v.GetDuration("OAUTH_REFRESH_MARGIN"),
		},
		Audit: Audit{
			Dir:             v.GetString("AUDIT_DIR"),
			RetentionDays:   v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupEnabled:  v.GetBool("AUDIT_CLEANUP_ENABLED"),
			CleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
	}
}
