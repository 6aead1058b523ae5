package database

import (
	"path/filepath"
	"testing"

	"voucherpos/config"
	"voucherpos/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestConnectDatabaseSQLite(t *testing.T) {
	cfg := &config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "pos.db"),
		LogLevel:   gormlogger.Silent,
	}

	db, err := ConnectDatabase(cfg)
	require.NoError(t, err)
	assert.Same(t, db, DB)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

// ClearDBAndMigrate is destructive; it runs against an in-memory database only.
func TestClearDBAndMigrate(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Tenant{Name: "Agency"}).Error)

	require.NoError(t, ClearDBAndMigrate(db))

	var count int64
	db.Model(&models.Tenant{}).Count(&count)
	assert.Zero(t, count)
}

func TestTenantSettingsRoundTrip(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)

	tenant := models.Tenant{
		Name:     "Agency",
		Settings: models.TenantSettings{Currency: "XOF", Modules: map[string]bool{models.ModuleTasks: false}},
	}
	require.NoError(t, db.Create(&tenant).Error)
	assert.NotEmpty(t, tenant.ID)

	var loaded models.Tenant
	require.NoError(t, db.First(&loaded, "id = ?", tenant.ID).Error)
	assert.Equal(t, "XOF", loaded.Settings.Currency)
	enabled, ok := loaded.Settings.Modules[models.ModuleTasks]
	assert.True(t, ok)
	assert.False(t, enabled)
}
