package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// queueParams mirror the catalog database: WAL, a busy wait and write locks
// taken at BEGIN.
const queueParams = "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

// Client runs the maintenance queues. Tasks live in their own SQLite file
// next to the catalog database so queue churn never blocks catalog writes.
type Client struct {
	queue   *backlite.Client
	db      *sql.DB
	workers int
	running atomic.Bool
}

// QueueDatabasePath maps catalog.db to catalog-tasks.db in the same directory.
func QueueDatabasePath(catalogDBPath string) string {
	ext := filepath.Ext(catalogDBPath)
	return strings.TrimSuffix(catalogDBPath, ext) + "-tasks" + ext
}

func NewClient(catalogDBPath string, cfg Config) (*Client, error) {
	cfg = cfg.normalize()

	db, err := sql.Open("sqlite3", QueueDatabasePath(catalogDBPath)+queueParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers + 2)
	db.SetMaxIdleConns(cfg.Workers + 1)

	queue, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create task queue: %w", err)
	}
	if err := queue.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install task queue schema: %w", err)
	}

	return &Client{queue: queue, db: db, workers: cfg.Workers}, nil
}

// Register adds queues. Must be called before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.queue.Register(q)
	}
}

// Start begins dispatching tasks; a second call is a no-op.
func (c *Client) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	log.Printf("Task queue started with %d workers", c.workers)
	c.queue.Start(ctx)
}

// Stop waits for running tasks until ctx expires. Returns false on timeout.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.running.Load() {
		return true
	}

	log.Println("Stopping task queue...")
	ok := c.queue.Stop(ctx)
	c.running.Store(false)
	if !ok {
		log.Println("Task queue stopped with timeout (some tasks may not have completed)")
	}
	return ok
}

// Close releases the tasks database. Call after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Enqueue stores the tasks in one transaction and returns their IDs.
func (c *Client) Enqueue(ctx context.Context, batch ...backlite.Task) ([]string, error) {
	return c.queue.Add(batch...).Ctx(ctx).Save()
}

func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.queue.Status(ctx, taskID)
}

// FirstActive returns the first of ids that is still pending or running.
// Lookup errors count as inactive.
func (c *Client) FirstActive(ctx context.Context, ids []string) (string, bool) {
	for _, id := range ids {
		status, err := c.Status(ctx, id)
		if err == nil && Active(status) {
			return id, true
		}
	}
	return "", false
}

type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (queueLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
