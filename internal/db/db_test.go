package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-allocation-backend/config"
	"hostel-allocation-backend/internal/model"
	"hostel-allocation-backend/internal/store"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "hostel.db"),
	}

	gdb, err := Init(cfg, nil)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	for _, m := range model.MigrateModels {
		assert.True(t, gdb.Migrator().HasTable(m))
	}

	// Unique violations are translated so the store can classify them.
	s := store.NewGormStore(gdb)
	ctx := context.Background()
	_, err = s.CreateRoom(ctx, "101", model.RoomTypeDouble, 2)
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, " 101 ", model.RoomTypeSingle, 1)
	assert.ErrorIs(t, err, store.ErrDuplicateRoomNumber)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestDialector_SQLitePragmas(t *testing.T) {
	testCases := []struct {
		dsn      string
		expected string
	}{
		{dsn: "hostel.db", expected: "hostel.db?" + sqlitePragmas + "&" + sqliteTxLock},
		{dsn: "file:hostel.db?mode=rwc", expected: "file:hostel.db?mode=rwc&" + sqlitePragmas + "&" + sqliteTxLock},
		{dsn: "hostel.db?_pragma=journal_mode(WAL)", expected: "hostel.db?_pragma=journal_mode(WAL)&" + sqliteTxLock},
		{dsn: "hostel.db?_txlock=deferred", expected: "hostel.db?_txlock=deferred&" + sqlitePragmas},
		{dsn: "hostel.db?_pragma=journal_mode(WAL)&_txlock=exclusive", expected: "hostel.db?_pragma=journal_mode(WAL)&_txlock=exclusive"},
	}

	for _, tc := range testCases {
		t.Run(tc.dsn, func(t *testing.T) {
			d, err := dialector(&config.DatabaseConfig{Driver: "sqlite", DSN: tc.dsn})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d.(*sqlite.Dialector).DSN)
		})
	}
}
