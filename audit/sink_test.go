package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"voucherpos/apperrors"
	"voucherpos/database"
	"voucherpos/models"
	"voucherpos/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var admin = session.Actor{UserID: "a1", TenantID: "t1", Name: "Admin", Role: models.RoleAdmin}

func setupAuditTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	return db
}

func TestRecordAndFlush(t *testing.T) {
	db := setupAuditTestDB(t)
	sink := NewSink(db, Options{Buffer: 4})
	defer sink.Close()

	for i := 0; i < 10; i++ {
		sink.Record(context.Background(), admin, "t1", ActionSell, "sold a voucher")
	}
	require.NoError(t, sink.Flush(context.Background()))

	var count int64
	db.Model(&models.ActivityLog{}).Where("tenant_id = ? AND action = ?", "t1", ActionSell).Count(&count)
	assert.Equal(t, int64(10), count)

	var entry models.ActivityLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "a1", entry.ActorID)
	assert.Equal(t, "Admin", entry.ActorName)
	assert.NotEmpty(t, entry.ID)
}

func TestWriteFailureDoesNotBlockCaller(t *testing.T) {
	db := setupAuditTestDB(t)
	db.Callback().Create().Before("gorm:create").Register("fail_logs", func(d *gorm.DB) {
		if d.Statement.Table == "activity_logs" {
			d.AddError(errors.New("log store down"))
		}
	})
	sink := NewSink(db, Options{Buffer: 1, MaxAttempts: 2, RetryDelay: time.Millisecond})

	start := time.Now()
	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), admin, "t1", ActionImport, "imported")
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	sink.Close()

	var count int64
	db.Model(&models.ActivityLog{}).Count(&count)
	assert.Zero(t, count)
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	db := setupAuditTestDB(t)
	sink := NewSink(db, Options{})
	sink.Close()
	sink.Close()

	sink.Record(context.Background(), admin, "t1", ActionSell, "late")
	assert.NoError(t, sink.Flush(context.Background()))
}

func TestListScoping(t *testing.T) {
	db := setupAuditTestDB(t)
	sink := NewSink(db, Options{})
	defer sink.Close()

	sink.Record(context.Background(), admin, "t1", ActionSell, "first")
	sink.Record(context.Background(), admin, "t2", ActionSell, "other tenant")
	require.NoError(t, sink.Flush(context.Background()))

	logs, err := List(context.Background(), db, admin, "t1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "first", logs[0].Details)

	_, err = List(context.Background(), db, admin, "t2", 0)
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = List(context.Background(), db, admin, "", 0)
	assert.True(t, apperrors.IsAuthorization(err))

	root := session.Actor{UserID: "root", Role: models.RoleSuperAdmin}
	all, err := List(context.Background(), db, root, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListDegradesToEmpty(t *testing.T) {
	db := setupAuditTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.ActivityLog{}))

	logs, err := List(context.Background(), db, admin, "t1", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
