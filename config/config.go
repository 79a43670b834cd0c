package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HOSTEL_SERVER_PORT.
const EnvPrefix = "HOSTEL"

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Hostel    HostelConfig    `yaml:"hostel"`
	Directory DirectoryConfig `yaml:"directory"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Debug     bool            `yaml:"debug"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port" split_words:"true"`
	RequestIPHeader string   `yaml:"request_ip_header" split_words:"true"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec" split_words:"true"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" split_words:"true"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" split_words:"true"`
	CORSOrigins     []string `yaml:"cors_origins" split_words:"true"`

	CacheTTL time.Duration `yaml:"-" ignored:"true"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" split_words:"true"`
	DSN                    string `yaml:"dsn" split_words:"true"`
	MaxOpenConns           int    `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns           int    `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" split_words:"true"`
	Tracing                bool   `yaml:"tracing" split_words:"true"`
}

// HostelConfig holds defaults applied to new registrations.
type HostelConfig struct {
	Name string `yaml:"name" split_words:"true"`
}

// DirectoryConfig describes the upstream student directory. An empty URL
// disables directory lookups.
type DirectoryConfig struct {
	URL             string            `yaml:"url" split_words:"true"`
	Headers         map[string]string `yaml:"headers" split_words:"true"`
	HTTPProxy       string            `yaml:"http_proxy" split_words:"true"`
	TimeoutSeconds  int               `yaml:"timeout_seconds" split_words:"true"`
	CacheTTLSeconds int               `yaml:"cache_ttl_seconds" split_words:"true"`
	VerifyStudents  bool              `yaml:"verify_students" split_words:"true"`

	Timeout  time.Duration `yaml:"-" ignored:"true"`
	CacheTTL time.Duration `yaml:"-" ignored:"true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true"`
}

// Enabled reports whether a student directory is configured.
func (d DirectoryConfig) Enabled() bool {
	return strings.TrimSpace(d.URL) != ""
}

// Load reads the configuration from the given path, then applies variables
// from a .env file and the environment on top. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = "hostel.db"
	}

	if strings.TrimSpace(cfg.Hostel.Name) == "" {
		cfg.Hostel.Name = "Main Hostel"
	}

	if cfg.Directory.TimeoutSeconds <= 0 {
		cfg.Directory.TimeoutSeconds = 10
	}
	cfg.Directory.Timeout = time.Duration(cfg.Directory.TimeoutSeconds) * time.Second
	if cfg.Directory.CacheTTLSeconds < 0 {
		slog.Warn("directory.cache_ttl_seconds is negative; disabling the directory cache")
		cfg.Directory.CacheTTLSeconds = 0
	}
	cfg.Directory.CacheTTL = time.Duration(cfg.Directory.CacheTTLSeconds) * time.Second

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	if c.Directory.VerifyStudents && !c.Directory.Enabled() {
		return errors.New("directory.verify_students requires directory.url")
	}
	return nil
}
