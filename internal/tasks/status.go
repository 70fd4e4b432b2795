package tasks

import "github.com/mikestefanello/backlite"

// StatusName renders a task status for logs and API responses.
func StatusName(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Active reports whether a task is still waiting or executing.
func Active(status backlite.TaskStatus) bool {
	return status == backlite.TaskStatusPending || status == backlite.TaskStatusRunning
}
