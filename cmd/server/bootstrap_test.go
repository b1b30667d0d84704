package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hectorgon/coderwall/internal/app"
	"github.com/hectorgon/coderwall/pkg/logger"
)

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres.Host = " db.internal "
	cfg.Database.Postgres.Port = 5433
	cfg.Database.Postgres.Database = "coderwall"
	cfg.Database.Postgres.Username = "app"

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "coderwall", dbCfg.Name)

	cfg = &app.Config{}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
}

func TestLoadApplicationConfigRejectsMissingPath(t *testing.T) {
	_, err := loadApplicationConfig("/no/such/config/dir")
	require.Error(t, err)
}

func TestBootstrapRuntimeWithSQLite(t *testing.T) {
	require.NoError(t, app.ConfigureLogging("error"))

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.sqlite")
	cfg.Maintenance.Enabled = false

	log := logger.WithModule("test")

	stack, err := bootstrapRuntime(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Gateway)
	require.NotNil(t, stack.Hub)

	stack.Shutdown(context.Background(), log)
}
