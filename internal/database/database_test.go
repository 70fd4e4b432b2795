package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/opdscatalog/internal/entities"
)

// setupTestDB creates a fresh test database
func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()
	dbPath := "./test_" + t.Name() + ".db"
	db, err := NewDatabaseWithOptions(dbPath, Options{LogLevel: logger.Silent})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}
	return db, cleanup
}

func TestNewDatabase_MigratesCatalogTables(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, model := range []any{&entities.OPDSFeed{}, &entities.OAuthCredential{}, &entities.AuditEvent{}} {
		assert.True(t, db.DB.Migrator().HasTable(model))
	}
}

func TestNewDatabase_DurabilitySettings(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var journal string
	require.NoError(t, db.DB.Raw("PRAGMA journal_mode").Scan(&journal).Error)
	assert.Equal(t, "wal", journal)

	var synchronous int
	require.NoError(t, db.DB.Raw("PRAGMA synchronous").Scan(&synchronous).Error)
	assert.Equal(t, 2, synchronous, "synchronous=FULL")

	var foreignKeys int
	require.NoError(t, db.DB.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error)
	assert.Equal(t, 1, foreignKeys)
}

func TestNewDatabase_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := NewDatabaseWithOptions(dbPath, Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, db.DB.Create(&entities.OPDSFeed{Identifier: "f1", Title: "Library", URL: "https://lib.example/opds"}).Error)
	require.NoError(t, db.Close())

	reopened, err := NewDatabaseWithOptions(dbPath, Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	defer reopened.Close()

	var feed entities.OPDSFeed
	require.NoError(t, reopened.DB.First(&feed, "identifier = ?", "f1").Error)
	assert.Equal(t, "Library", feed.Title)
}

func TestPing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, db.Ping())
	require.NoError(t, db.Close())
	assert.Error(t, db.Ping())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?"+sqliteParams, dsn("a.db"))
	assert.Equal(t, "file:a.db?cache=shared&"+sqliteParams, dsn("file:a.db?cache=shared"))
}
