package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/pipesync/internal/sync/timeout"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if errs := cfg.Sync.Timeouts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid timeout config: %s", strings.Join(errs, "; "))
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.MaxRetries <= 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.BaseDelay <= 0 {
		cfg.Sync.BaseDelay = time.Second
	}
	if cfg.Sync.SearchCacheTTL <= 0 {
		cfg.Sync.SearchCacheTTL = 5 * time.Minute
	}
	if cfg.Sync.SearchRateLimit <= 0 {
		cfg.Sync.SearchRateLimit = 30
	}
	if cfg.Sync.LockTTL <= 0 {
		cfg.Sync.LockTTL = 10 * time.Minute
	}

	defaults := timeout.DefaultConfig()
	if cfg.Sync.Timeouts == (timeout.Config{}) {
		cfg.Sync.Timeouts = defaults
		return
	}
	if cfg.Sync.Timeouts.SyncTimeout == 0 {
		cfg.Sync.Timeouts.SyncTimeout = defaults.SyncTimeout
	}
	if cfg.Sync.Timeouts.BatchTimeout == 0 {
		cfg.Sync.Timeouts.BatchTimeout = defaults.BatchTimeout
	}
	if cfg.Sync.Timeouts.MaxBatchTimeout == 0 {
		cfg.Sync.Timeouts.MaxBatchTimeout = defaults.MaxBatchTimeout
	}
}
