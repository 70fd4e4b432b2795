package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/opdscatalog/internal/database/audit"
	"github.com/mrlokans/opdscatalog/internal/entities"
)

const (
	EntityFeed    = "opds_feed"
	EntityCatalog = "catalog"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Flush blocks until every LogAsync call issued so far has been written.
func (s *Service) Flush() {
	s.pending.Wait()
}

// LogFeed records a feed store change (add, update, delete).
func (s *Service) LogFeed(action, feedID, title string, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventFeed,
		Action:      "feed_" + action,
		Description: fmt.Sprintf("Feed %s: %s", action, title),
		EntityType:  EntityFeed,
		EntityID:    feedID,
		Status:      entities.AuditStatusSuccess,
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// LogAuth records the outcome of a login or token refresh for a catalog source.
// Only the source origin is recorded; logins, passwords and tokens never are.
func (s *Service) LogAuth(action, source string, authenticated bool, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventAuth,
		Action:      "oauth_" + action,
		Description: fmt.Sprintf("OAuth %s for %s", action, source),
		EntityType:  EntityCatalog,
		EntityID:    source,
		Status:      entities.AuditStatusSuccess,
	}

	if mdBytes, e := json.Marshal(map[string]any{"authenticated": authenticated}); e == nil {
		event.Metadata = string(mdBytes)
	}

	if !authenticated {
		event.Status = entities.AuditStatusFailed
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// LogMaintenance records a housekeeping run such as audit retention cleanup.
func (s *Service) LogMaintenance(action, description string, affected int64, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventMaintenance,
		Action:      action,
		Description: description,
		Status:      entities.AuditStatusSuccess,
	}

	if mdBytes, e := json.Marshal(map[string]any{"affected": affected}); e == nil {
		event.Metadata = string(mdBytes)
	}

	markFailed(event, err)
	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, limit, offset)
}

// GetFeedHistory returns the recorded events for one feed.
func (s *Service) GetFeedHistory(feedID string, limit int) ([]entities.AuditEvent, error) {
	return s.repo.GetEventsForEntity(EntityFeed, feedID, limit)
}

// GetEvent returns one event or audit.ErrEventNotFound.
func (s *Service) GetEvent(id uint) (*entities.AuditEvent, error) {
	return s.repo.GetEventByID(id)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

func markFailed(event *entities.AuditEvent, err error) {
	if err == nil {
		return
	}
	event.Status = entities.AuditStatusFailed
	event.ErrorMsg = truncate(err.Error(), 500)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
