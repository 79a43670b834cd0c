// Package testdb opens migrated throwaway databases for tests through the
// same path the service uses in production.
package testdb

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hostel-allocation-backend/config"
	"hostel-allocation-backend/internal/db"
)

// Memory opens a private in-memory SQLite database. It lives as long as the
// connection pool and is closed when the test ends.
func Memory(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
}

// File opens a SQLite database file under t.TempDir.
func File(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "hostel.db"),
	})
}

func open(t testing.TB, cfg *config.DatabaseConfig) *gorm.DB {
	t.Helper()

	gdb, err := db.Init(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}
