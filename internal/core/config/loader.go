package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
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

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Remote.TimeoutSeconds == 0 {
		cfg.Remote.TimeoutSeconds = 30
	}
	if cfg.Remote.Retry.MaxAttempts == 0 {
		cfg.Remote.Retry.MaxAttempts = 3
	}
	if cfg.Remote.Retry.BaseDelay == 0 {
		cfg.Remote.Retry.BaseDelay = 1
	}
	if cfg.Remote.Retry.MaxDelay == 0 {
		cfg.Remote.Retry.MaxDelay = 30
	}
	if cfg.Remote.Retry.ExponentialBase == 0 {
		cfg.Remote.Retry.ExponentialBase = 2
	}
	if cfg.Remote.Breaker.FailureThreshold == 0 {
		cfg.Remote.Breaker.FailureThreshold = 5
	}
	if cfg.Remote.Breaker.SuccessThreshold == 0 {
		cfg.Remote.Breaker.SuccessThreshold = 2
	}
	if cfg.Remote.Breaker.CircuitTimeout == 0 {
		cfg.Remote.Breaker.CircuitTimeout = 60
	}

	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Sync.BatchTimeoutSeconds == 0 {
		cfg.Sync.BatchTimeoutSeconds = 300
	}
	if cfg.Sync.ProgressInterval == 0 {
		cfg.Sync.ProgressInterval = 50
	}
	if cfg.Sync.ConcurrentLimit == 0 {
		cfg.Sync.ConcurrentLimit = 4
	}
	if cfg.Sync.MaxAgeDays == 0 {
		cfg.Sync.MaxAgeDays = 1
	}
	if cfg.Sync.ScanIntervalSeconds == 0 {
		cfg.Sync.ScanIntervalSeconds = 600
	}

	if cfg.Extract.QAThreshold == 0 {
		cfg.Extract.QAThreshold = 0.8
	}
	if cfg.Extract.RAGThreshold == 0 {
		cfg.Extract.RAGThreshold = 0.7
	}
	if cfg.Extract.ConfidenceThreshold == 0 {
		cfg.Extract.ConfidenceThreshold = 0.75
	}
	if cfg.Extract.MaxPatternsPerExperiment == 0 {
		cfg.Extract.MaxPatternsPerExperiment = 10
	}

	if cfg.Rescan.IntervalSeconds == 0 {
		cfg.Rescan.IntervalSeconds = 60
	}
	if cfg.Rescan.MaxRetries == 0 {
		cfg.Rescan.MaxRetries = 5
	}
}
