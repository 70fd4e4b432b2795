package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/opdscatalog/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestRepository_LogEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventFeed,
		Action:      "feed_add",
		Description: "Added feed: Public Library",
		EntityType:  "opds_feed",
		EntityID:    "f-1",
		Status:      entities.AuditStatusSuccess,
	}

	err := repo.LogEvent(event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_GetEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	for i := 0; i < 15; i++ {
		err := repo.LogEvent(&entities.AuditEvent{
			EventType: entities.AuditEventFeed,
			Action:    "feed_update",
			Status:    entities.AuditStatusSuccess,
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		err := repo.LogEvent(&entities.AuditEvent{
			EventType: entities.AuditEventAuth,
			Action:    "oauth_login",
			Status:    entities.AuditStatusSuccess,
		})
		require.NoError(t, err)
	}

	t.Run("get all events", func(t *testing.T) {
		events, total, err := repo.GetEvents(50, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(20), total)
		assert.Len(t, events, 20)
	})

	t.Run("pagination", func(t *testing.T) {
		events, total, err := repo.GetEvents(5, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(20), total)
		assert.Len(t, events, 5)

		events2, _, err := repo.GetEvents(5, 5)
		require.NoError(t, err)
		assert.Len(t, events2, 5)
		assert.NotEqual(t, events[0].ID, events2[0].ID)
	})

	t.Run("order by created_at desc", func(t *testing.T) {
		events, _, err := repo.GetEvents(20, 0)
		require.NoError(t, err)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i].CreatedAt.After(events[i-1].CreatedAt))
		}
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.GetEventsByType(entities.AuditEventAuth, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		for _, e := range events {
			assert.Equal(t, entities.AuditEventAuth, e.EventType)
		}
	})
}

func TestRepository_GetEventsForEntity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventFeed, Action: "feed_add",
		EntityType: "opds_feed", EntityID: "a", Status: entities.AuditStatusSuccess,
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventFeed, Action: "feed_delete",
		EntityType: "opds_feed", EntityID: "a", Status: entities.AuditStatusSuccess,
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventFeed, Action: "feed_add",
		EntityType: "opds_feed", EntityID: "b", Status: entities.AuditStatusSuccess,
	}))

	events, err := repo.GetEventsForEntity("opds_feed", "a", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRepository_SameTimestampNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	at := time.Now().Truncate(time.Second)

	for _, action := range []string{"feed_add", "feed_update", "feed_delete"} {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			EventType: entities.AuditEventFeed, Action: action,
			EntityType: "opds_feed", EntityID: "a",
			Status: entities.AuditStatusSuccess, CreatedAt: at,
		}))
	}

	events, err := repo.GetEventsForEntity("opds_feed", "a", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "feed_delete", events[0].Action)
	assert.Equal(t, "feed_add", events[2].Action)
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	now := time.Now()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventFeed, Action: "old_add",
		Status: entities.AuditStatusSuccess, CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventFeed, Action: "new_delete",
		Status: entities.AuditStatusSuccess, CreatedAt: now.Add(-1 * time.Hour),
	}))

	deleted, err := repo.DeleteOldEvents(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.GetEvents(50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "new_delete", events[0].Action)
}

func TestRepository_GetEventByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	event := &entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    "oauth_refresh",
		Status:    entities.AuditStatusSuccess,
	}
	require.NoError(t, repo.LogEvent(event))

	t.Run("existing event", func(t *testing.T) {
		found, err := repo.GetEventByID(event.ID)
		require.NoError(t, err)
		assert.Equal(t, "oauth_refresh", found.Action)
	})

	t.Run("non-existing event", func(t *testing.T) {
		_, err := repo.GetEventByID(999)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}
