package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hectorgon/coderwall/internal/database"
	"github.com/hectorgon/coderwall/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createTeam(t *testing.T, db *gorm.DB, slug string, mutate ...func(*models.Team)) *models.Team {
	t.Helper()

	team := &models.Team{Slug: slug, Name: slug}
	for _, fn := range mutate {
		fn(team)
	}
	require.NoError(t, db.Create(team).Error)
	return team
}

func createUser(t *testing.T, db *gorm.DB, username string, mutate ...func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{Username: username, Email: username + "@example.com"}
	for _, fn := range mutate {
		fn(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func makeAdmin(t *testing.T, db *gorm.DB, team *models.Team, user *models.User) {
	t.Helper()
	require.NoError(t, db.Model(team).Association("Admins").Append(user))
}

type dispatchedEvent struct {
	Kind       string
	Recipients []string
	Fields     map[string]any
}

// recordingDispatcher captures notification sends for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatchedEvent
}

func (d *recordingDispatcher) Send(kind string, recipientIDs []string, fields map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, dispatchedEvent{Kind: kind, Recipients: recipientIDs, Fields: fields})
}

func (d *recordingDispatcher) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.events))
	for _, event := range d.events {
		out = append(out, event.Kind)
	}
	return out
}
