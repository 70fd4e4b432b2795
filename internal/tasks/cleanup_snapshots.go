package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikestefanello/backlite"
)

// CleanupSnapshotsTask removes malformed-feed snapshots older than the retention period.
type CleanupSnapshotsTask struct {
	Dir           string `json:"dir"`
	RetentionDays int    `json:"retention_days"`
}

// Config returns the queue configuration for snapshot cleanup tasks.
func (t CleanupSnapshotsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_feed_snapshots",
		MaxAttempts: 2,
		Backoff:     5 * time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
		},
	}
}

// CleanupSnapshotsProcessor creates a processor function for CleanupSnapshotsTask.
func CleanupSnapshotsProcessor(now func() time.Time) backlite.QueueProcessor[CleanupSnapshotsTask] {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, task CleanupSnapshotsTask) error {
		if task.Dir == "" {
			return nil
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = DefaultRetentionDays
		}
		cutoff := now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

		removed, err := removeSnapshotsBefore(ctx, task.Dir, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup feed snapshots: %w", err)
		}

		log.Printf("[TASK] Removed %d feed snapshots older than %d days from %s", removed, retentionDays, task.Dir)
		return nil
	}
}

func removeSnapshotsBefore(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// NewCleanupSnapshotsQueue creates a backlite queue for snapshot cleanup tasks.
func NewCleanupSnapshotsQueue() backlite.Queue {
	return backlite.NewQueue(CleanupSnapshotsProcessor(nil))
}
