package config

import (
	"time"

	redisclient "github.com/vietddude/pipesync/internal/infra/redis"
	"github.com/vietddude/pipesync/internal/infra/storage/postgres"
	"github.com/vietddude/pipesync/internal/sync/timeout"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Sync     SyncConfig         `yaml:"sync"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SyncConfig holds tuning for sync runs.
type SyncConfig struct {
	BatchSize       int            `yaml:"batch_size"`
	MaxRetries      int            `yaml:"max_retries"`
	BaseDelay       time.Duration  `yaml:"base_delay"`
	Timeouts        timeout.Config `yaml:"timeouts"`
	SearchCacheTTL  time.Duration  `yaml:"search_cache_ttl"`
	SearchRateLimit int            `yaml:"search_rate_limit"` // remote searches per user per minute
	LockTTL         time.Duration  `yaml:"lock_ttl"`
}
