package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/database/audit"
	"github.com/mrlokans/opdscatalog/internal/entities"
)

type AuditController struct {
	events AuditReader
}

func NewAuditController(events AuditReader) *AuditController {
	return &AuditController{
		events: events,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&limit=&offset=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset := parsePagination(c, 25, 100)
	eventType := c.Query("type")

	var events []entities.AuditEvent
	var total int64
	var err error

	if eventType != "" {
		events, total, err = ac.events.GetEventsByType(entities.AuditEventType(eventType), limit, offset)
	} else {
		events, total, err = ac.events.GetEvents(limit, offset)
	}
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+len(events)) < total,
		TotalPages: totalPages,
	})
}

// GetAuditEvent returns a single event
// GET /api/audit/:id
func (ac *AuditController) GetAuditEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "event id must be a positive integer")
		return
	}

	event, err := ac.events.GetEvent(uint(id))
	if errors.Is(err, audit.ErrEventNotFound) {
		respondNotFound(c, "audit event")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get audit event")
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetFeedHistory returns the most recent audit events for one feed
// GET /api/feeds/:id/history
func (ac *AuditController) GetFeedHistory(c *gin.Context) {
	limit, _ := parsePagination(c, 50, 200)

	events, err := ac.events.GetFeedHistory(c.Param("id"), limit)
	if err != nil {
		respondInternalError(c, err, "feed history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
