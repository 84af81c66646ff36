package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// setupTestDB opens an in-memory SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.AgentModel{},
		&models.SyncJobModel{},
		&models.DeadLetterModel{},
		&models.ReconciliationEventModel{},
		&models.MappingEntryModel{},
		&models.CatalogItemModel{},
		&models.WarehouseModel{},
		&models.StockLevelModel{},
	))
	return db
}
