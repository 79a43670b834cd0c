package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  cors_origins: ["https://admin.example.edu"]
database:
  driver: Postgres
  dsn: "host=db user=hostel dbname=hostel"
hostel:
  name: "North Wing"
directory:
  url: "https://students.example.edu/api/students"
  headers:
    X-Api-Key: secret
  cache_ttl_seconds: 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://admin.example.edu"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 5*time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "North Wing", cfg.Hostel.Name)
	assert.True(t, cfg.Directory.Enabled())
	assert.Equal(t, "secret", cfg.Directory.Headers["X-Api-Key"])
	assert.Equal(t, 10*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, time.Minute, cfg.Directory.CacheTTL)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
  dsn: "file.db"
`)
	t.Setenv("HOSTEL_SERVER_PORT", "9443")
	t.Setenv("HOSTEL_DATABASE_DSN", "override.db")
	t.Setenv("HOSTEL_HOSTEL_NAME", "Annex")
	t.Setenv("HOSTEL_METRICS_ENABLED", "true")
	t.Setenv("HOSTEL_DIRECTORY_URL", "http://directory.local/students")
	t.Setenv("HOSTEL_DIRECTORY_HEADERS", "Authorization:Bearer abc")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "override.db", cfg.Database.DSN)
	assert.Equal(t, "Annex", cfg.Hostel.Name)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "http://directory.local/students", cfg.Directory.URL)
	assert.Equal(t, "Bearer abc", cfg.Directory.Headers["Authorization"])
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "hostel.db", cfg.Database.DSN)
	assert.Equal(t, "Main Hostel", cfg.Hostel.Name)
	assert.False(t, cfg.Directory.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{
			name: "Unknown driver",
			body: "database:\n  driver: oracle\n  dsn: x\n",
		},
		{
			name: "Postgres without DSN",
			body: "database:\n  driver: postgres\n",
		},
		{
			name: "Student verification without directory",
			body: "directory:\n  verify_students: true\n",
		},
		{
			name: "Malformed YAML",
			body: "server: [port: 1\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
