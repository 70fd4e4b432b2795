// Package scheduler triggers periodic maintenance through the task queue.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/tasks"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Queue is the part of the task client the scheduler needs.
type Queue interface {
	Enqueue(ctx context.Context, batch ...backlite.Task) ([]string, error)
	FirstActive(ctx context.Context, ids []string) (string, bool)
}

// MaintenanceScheduler enqueues audit retention cleanup on a cron schedule.
type MaintenanceScheduler struct {
	client Queue
	config config.Audit

	cron        *cron.Cron
	entryID     cron.EntryID
	mu          sync.RWMutex
	isRunning   bool
	cancelFunc  context.CancelFunc
	lastTaskIDs []string
}

// NewMaintenanceScheduler creates a new scheduler instance
func NewMaintenanceScheduler(client Queue, cfg config.Audit) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		client: client,
		config: cfg,
		cron:   cron.New(cron.WithParser(cronParser)),
	}
}

// Start begins the scheduler if cleanup is enabled
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.CleanupEnabled {
		log.Printf("Maintenance scheduler: disabled")
		return nil
	}

	if err := ValidateCronSchedule(s.config.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.CleanupSchedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.CleanupSchedule, func() {
		if _, err := s.enqueue(context.Background()); err != nil {
			log.Printf("Maintenance scheduler: failed to enqueue cleanup: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := GetNextRunTime(s.config.CleanupSchedule)
	log.Printf("Maintenance scheduler: started with schedule '%s' (%s). Next run: %v",
		s.config.CleanupSchedule,
		GetCronDescription(s.config.CleanupSchedule),
		nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.cron.Remove(s.entryID)
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Maintenance scheduler: stopped")
}

// RunNow enqueues the cleanup tasks immediately and returns their IDs.
func (s *MaintenanceScheduler) RunNow(ctx context.Context) ([]string, error) {
	return s.enqueue(ctx)
}

// IsRunning returns whether the scheduler is active
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next cleanup will be enqueued
func (s *MaintenanceScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// enqueue adds the cleanup tasks unless the previous batch is still queued.
func (s *MaintenanceScheduler) enqueue(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.client.FirstActive(ctx, s.lastTaskIDs); ok {
		log.Printf("Maintenance scheduler: previous cleanup %s still queued, skipping", id)
		return s.lastTaskIDs, nil
	}

	batch := []backlite.Task{tasks.CleanupAuditEventsTask{RetentionDays: s.config.RetentionDays}}
	if s.config.Dir != "" {
		batch = append(batch, tasks.CleanupSnapshotsTask{Dir: s.config.Dir, RetentionDays: s.config.RetentionDays})
	}

	ids, err := s.client.Enqueue(ctx, batch...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue cleanup tasks: %w", err)
	}

	s.lastTaskIDs = ids
	log.Printf("Maintenance scheduler: enqueued %d cleanup tasks", len(ids))
	return ids, nil
}

// ValidateCronSchedule validates a cron schedule string
func ValidateCronSchedule(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// GetCronDescription returns a human-readable description of a cron schedule
func GetCronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "0 3 * * *":
		return "Daily at 03:00"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 0 * * 0":
		return "Weekly on Sunday at midnight"
	default:
		return "Custom schedule: " + schedule
	}
}

// GetNextRunTime calculates when the schedule fires next
func GetNextRunTime(schedule string) (*time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now())
	return &next, nil
}
