package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "forecast.db"),
	}
	db, err := Open(cfg, logging.NewDiscardLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "sqlite",
			cfg:  Config{Driver: DriverSQLite, Path: "/tmp/area.db"},
			want: "file:/tmp/area.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL",
		},
		{
			name: "postgres",
			cfg: Config{
				Driver: DriverPostgres, Host: "localhost", Port: 5432,
				User: "jma", Password: "secret", Database: "forecast", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=jma password=secret dbname=forecast sslmode=disable",
		},
		{
			name:    "sqlite without path",
			cfg:     Config{Driver: DriverSQLite},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "mysql"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DSN()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDB_MigrateUpAndDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx, "up"))
	// Applying twice is harmless.
	require.NoError(t, db.Migrate(ctx, "up"))

	var tables []string
	err := db.SelectContext(ctx, "list_tables", &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"offices", "regions", "weather_forecasts"}, tables)

	require.NoError(t, db.Migrate(ctx, "down"))
	tables = nil
	err = db.SelectContext(ctx, "list_tables", &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	assert.Empty(t, tables)

	assert.Error(t, db.Migrate(ctx, "sideways"))
}

func TestDB_RebindsPlaceholders(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, "up"))

	_, err := db.ExecContext(ctx, "insert_region",
		`INSERT INTO regions (code, name) VALUES (?, ?)`, "010300", "関東甲信地方")
	require.NoError(t, err)

	var name string
	require.NoError(t, db.GetContext(ctx, "get_region", &name,
		`SELECT name FROM regions WHERE code = ?`, "010300"))
	assert.Equal(t, "関東甲信地方", name)
}

func TestDB_HealthCheckAndClose(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.HealthCheck(context.Background()))
	assert.Equal(t, DriverSQLite, db.Driver())
	require.NoError(t, db.Close())
	// Close is idempotent.
	require.NoError(t, db.Close())
}
