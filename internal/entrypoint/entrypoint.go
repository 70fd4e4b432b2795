package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/audit"
	"github.com/mrlokans/opdscatalog/internal/catalog"
	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/crypto"
	"github.com/mrlokans/opdscatalog/internal/database"
	auditrepo "github.com/mrlokans/opdscatalog/internal/database/audit"
	"github.com/mrlokans/opdscatalog/internal/database/credentials"
	"github.com/mrlokans/opdscatalog/internal/database/feeds"
	http_controllers "github.com/mrlokans/opdscatalog/internal/http"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
	"github.com/mrlokans/opdscatalog/internal/opds"
	"github.com/mrlokans/opdscatalog/internal/scheduler"
	"github.com/mrlokans/opdscatalog/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds the wired catalog components shared by the server and the CLI.
type App struct {
	DB      *database.Database
	Audit   *audit.Service
	Manager *oauth2.Manager
	Catalog *catalog.Service
}

// Build opens the database and wires the catalog service from cfg.
func Build(cfg *config.Config) (*App, error) {
	if cfg.OAuth.EncryptionKeyHex != "" || cfg.OAuth.EncryptionIVHex != "" {
		if err := crypto.ValidateKeyPair(cfg.OAuth.EncryptionKeyHex, cfg.OAuth.EncryptionIVHex); err != nil {
			return nil, fmt.Errorf("invalid OPDS_AUTH_ENCRYPTION_* settings: %w", err)
		}
		log.Printf("Default refresh-token key fingerprint: %s", crypto.Fingerprint(cfg.OAuth.EncryptionKeyHex, cfg.OAuth.EncryptionIVHex))
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	feedRepo := feeds.NewRepository(db.DB)
	credRepo := credentials.NewRepository(db.DB)
	auditService := audit.NewService(auditrepo.NewRepository(db.DB))

	client := httpclient.New(httpclient.Config{
		Timeout:      cfg.Catalog.Timeout,
		MaxRedirects: cfg.Catalog.MaxRedirects,
		UserAgent:    cfg.Catalog.UserAgent,
		RateLimit:    cfg.Catalog.RateLimit,
		RateBurst:    cfg.Catalog.RateBurst,
	})

	manager := oauth2.NewManager(
		oauth2.NewGrantClient(client),
		crypto.NewVault(),
		credRepo,
		oauth2.Config{
			RefreshMargin: cfg.OAuth.RefreshMargin,
			DefaultKeyHex: cfg.OAuth.EncryptionKeyHex,
			DefaultIVHex:  cfg.OAuth.EncryptionIVHex,
		},
		oauth2.WithFeedFinder(feedRepo),
		oauth2.WithAudit(auditService),
	)

	fetcher := opds.NewFetcher(client, manager, opds.FetcherConfig{MaxBodyBytes: cfg.Catalog.MaxBodyBytes})

	opts := []catalog.Option{catalog.WithAudit(auditService)}
	if cfg.Audit.Dir != "" {
		opts = append(opts, catalog.WithSnapshots(audit.NewAuditor(cfg.Audit.Dir)))
		log.Printf("Malformed feed snapshots will be written to %s", cfg.Audit.Dir)
	}

	return &App{
		DB:      db,
		Audit:   auditService,
		Manager: manager,
		Catalog: catalog.NewService(feedRepo, fetcher, manager, opts...),
	}, nil
}

// Close flushes pending audit writes and closes the database.
func (a *App) Close() error {
	a.Audit.Flush()
	return a.DB.Close()
}

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for SIGINT or SIGTERM, then give in-flight requests the
	// configured timeout to finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting OPDS catalog v%s", version)

	app, err := Build(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var maintenance *scheduler.MaintenanceScheduler
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.FromSettings(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewCleanupAuditEventsQueue(app.Audit),
			tasks.NewCleanupSnapshotsQueue(),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		maintenance = scheduler.NewMaintenanceScheduler(taskClient, cfg.Audit)
		if err := maintenance.Start(taskCtx); err != nil {
			log.Printf("WARNING: audit cleanup schedule not started: %v", err)
		}
	} else {
		log.Printf("Task queue disabled; audit retention cleanup will not run")
	}

	routerCfg := http_controllers.RouterConfig{
		Catalog:  app.Catalog,
		Database: app.DB,
		Audit:    app.Audit,
		Version:  version,
	}
	if taskClient != nil {
		routerCfg.TaskClient = taskClient
		routerCfg.Maintenance = maintenance
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
