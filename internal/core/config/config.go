package config

import (
	redisclient "github.com/ndquoc/evalsync/internal/infra/redis"
	"github.com/ndquoc/evalsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Remote   RemoteConfig       `yaml:"remote"`
	Sync     SyncConfig         `yaml:"sync"`
	Extract  ExtractConfig      `yaml:"extract"`
	Rescan   RescanConfig       `yaml:"rescan"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RemoteConfig holds settings for the remote experimentation service.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	TimeoutSeconds float64       `yaml:"timeout_seconds"`
	Retry          RetryConfig   `yaml:"retry"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// RetryConfig holds backoff settings for remote calls. Delays are in seconds.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelay       float64 `yaml:"base_delay"`
	MaxDelay        float64 `yaml:"max_delay"`
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          bool    `yaml:"jitter"`
}

// BreakerConfig holds circuit breaker thresholds. Timeout is in seconds.
type BreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	SuccessThreshold int     `yaml:"success_threshold"`
	CircuitTimeout   float64 `yaml:"circuit_timeout"`
}

// SyncConfig holds batch synchronization settings.
type SyncConfig struct {
	BatchSize           int      `yaml:"batch_size"`
	BatchTimeoutSeconds float64  `yaml:"batch_timeout_seconds"`
	ProgressInterval    int      `yaml:"progress_interval"`
	ConcurrentLimit     int      `yaml:"concurrent_limit"`
	MaxAgeDays          int      `yaml:"max_age_days"`
	ScanIntervalSeconds float64  `yaml:"scan_interval_seconds"`
	Datasets            []string `yaml:"datasets"` // empty = discover via ListDatasets
}

// ExtractConfig holds pattern extraction thresholds.
type ExtractConfig struct {
	QAThreshold              float64 `yaml:"qa_threshold"`
	RAGThreshold             float64 `yaml:"rag_threshold"`
	ConfidenceThreshold      float64 `yaml:"confidence_threshold"`
	MaxPatternsPerExperiment int     `yaml:"max_patterns_per_experiment"`
}

// RescanConfig holds failed-page rescan worker settings.
type RescanConfig struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
	MaxRetries      int     `yaml:"max_retries"`
}
