package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hectorgon/coderwall/internal/models"
)

func openSearchTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Team{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestSQLIndexRanksByRelevancy(t *testing.T) {
	db := openSearchTestDB(t)

	teams := []models.Team{
		{Slug: "globex", Name: "Globex", Relevancy: 10, Country: "US"},
		{Slug: "initech", Name: "Initech", Relevancy: 40, Country: "US"},
		{Slug: "acme", Name: "Acme", Relevancy: 25, Country: "CA"},
	}
	for i := range teams {
		require.NoError(t, db.Create(&teams[i]).Error)
	}

	index, err := NewSQLIndex(db)
	require.NoError(t, err)

	ids, err := index.Query(context.Background(), "", Filters{}, 1, 30)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Equal(t, teams[1].ID, ids[0])
	require.Equal(t, teams[2].ID, ids[1])

	ids, err = index.Query(context.Background(), "acme", Filters{}, 1, 30)
	require.NoError(t, err)
	require.Equal(t, []string{teams[2].ID}, ids)

	ids, err = index.Query(context.Background(), "", Filters{Country: "US"}, 1, 30)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestSQLIndexDefaultsPage(t *testing.T) {
	db := openSearchTestDB(t)
	index, err := NewSQLIndex(db)
	require.NoError(t, err)

	ids, err := index.Query(context.Background(), "", Filters{}, -3, 30)
	require.NoError(t, err)
	require.Empty(t, ids)
}
