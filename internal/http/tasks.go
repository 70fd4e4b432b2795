package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/opdscatalog/internal/tasks"
)

// TasksController exposes background maintenance tasks.
type TasksController struct {
	client      TaskStatusReader
	maintenance MaintenanceRunner
}

// NewTasksController creates a new TasksController. maintenance may be nil
// when scheduled cleanup is disabled.
func NewTasksController(client TaskStatusReader, maintenance MaintenanceRunner) *TasksController {
	return &TasksController{client: client, maintenance: maintenance}
}

// GetTaskStatus handles GET /api/tasks/:id
// Returns the status of a specific task.
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": tasks.StatusName(status),
	})
}

// MaintenanceStatus handles GET /api/maintenance
func (tc *TasksController) MaintenanceStatus(c *gin.Context) {
	if tc.maintenance == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	resp := gin.H{
		"enabled": true,
		"running": tc.maintenance.IsRunning(),
	}
	if next := tc.maintenance.GetNextRunTime(); next != nil {
		resp["next_run"] = next.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// RunMaintenance handles POST /api/maintenance/cleanup
// Enqueues the retention cleanup immediately. While a previous batch is
// still queued its IDs are returned instead.
func (tc *TasksController) RunMaintenance(c *gin.Context) {
	if tc.maintenance == nil {
		respondError(c, http.StatusServiceUnavailable, "maintenance_disabled", "maintenance is disabled")
		return
	}

	ids, err := tc.maintenance.RunNow(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "run maintenance")
		return
	}
	respondAccepted(c, "cleanup enqueued", gin.H{"task_ids": ids})
}
