package tasks

import (
	"time"

	"github.com/mrlokans/opdscatalog/internal/config"
)

// Config controls the maintenance task queue.
type Config struct {
	// Workers is the number of concurrent workers. Default: 1
	Workers int

	// ReleaseAfter returns a task stuck in the running state to the queue. Default: 15m
	ReleaseAfter time.Duration

	// CleanupInterval is how often finished tasks are purged. Default: 1h
	CleanupInterval time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// FromSettings converts the application task settings, falling back to
// defaults for unset values.
func FromSettings(s config.Tasks) Config {
	return Config{
		Workers:         s.Workers,
		ReleaseAfter:    s.ReleaseAfter,
		CleanupInterval: s.CleanupInterval,
	}.normalize()
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.ReleaseAfter <= 0 {
		c.ReleaseAfter = def.ReleaseAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	return c
}
