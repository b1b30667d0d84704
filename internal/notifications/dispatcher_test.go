package notifications

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hectorgon/coderwall/internal/models"
)

func TestDispatcherPersistsNotifications(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Notification{}))

	dispatcher := NewDispatcher(db, NewHub())
	dispatcher.Send("join_request.submitted", []string{"admin-1", "admin-2"}, map[string]any{
		"team_id": "team-1",
		"user_id": "user-9",
	})

	var rows []models.Notification
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, "join_request.submitted", rows[0].Kind)
}

func TestDispatcherToleratesNilDeps(t *testing.T) {
	var d *Dispatcher
	d.Send("noop", []string{"u"}, nil) // must not panic

	NewDispatcher(nil, nil).Send("noop", []string{"u"}, nil)
}
