// Package config provides configuration loading: an optional YAML file
// establishes the base, environment variables override it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SweepConfig controls the redispatch sweep for stuck pending jobs.
type SweepConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MinAge      time.Duration `yaml:"minAge"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// ServiceConfig holds configuration for the jobs service.
type ServiceConfig struct {
	Port              string        `yaml:"port"`
	MetricsPort       string        `yaml:"metricsPort"`
	APIKey            string        `yaml:"-"`
	APIKeyFile        string        `yaml:"apiKeyFile"`
	ShutdownDrainWait time.Duration `yaml:"shutdownDrainWait"`

	ExecutorURL     string        `yaml:"executorUrl"`
	ExecutorTimeout time.Duration `yaml:"executorTimeout"`
	SigningKey      string        `yaml:"-"`
	SigningKeyFile  string        `yaml:"signingKeyFile"`
	CallbackBaseURL string        `yaml:"callbackBaseUrl"`

	StoreBackend string `yaml:"storeBackend"` // memory, postgres, or redis
	PostgresDSN  string `yaml:"postgresDsn"`
	RedisAddr    string `yaml:"redisAddr"`

	DatasetDir  string `yaml:"datasetDir"`
	ArtifactDir string `yaml:"artifactDir"`

	Sweep SweepConfig `yaml:"sweep"`
}

// LoadServiceConfig builds the service configuration. A YAML file named by
// CONFIG_FILE supplies the base; every field can then be overridden by its
// environment variable.
func LoadServiceConfig() (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:              "8080",
		MetricsPort:       "9090",
		ShutdownDrainWait: 5 * time.Second,
		ExecutorURL:       "http://trainer:9000/dispatch",
		ExecutorTimeout:   5 * time.Second,
		CallbackBaseURL:   "http://jobs:8080",
		StoreBackend:      "memory",
		DatasetDir:        "/data/datasets",
		ArtifactDir:       "/data/models",
		Sweep: SweepConfig{
			Interval:    30 * time.Second,
			MinAge:      time.Minute,
			MaxAttempts: 5,
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.MetricsPort = GetEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.APIKeyFile = GetEnv("API_KEY_FILE", cfg.APIKeyFile)
	cfg.APIKey = GetSecretFile(cfg.APIKeyFile)
	cfg.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", cfg.ShutdownDrainWait)

	cfg.ExecutorURL = GetEnv("EXECUTOR_URL", cfg.ExecutorURL)
	cfg.ExecutorTimeout = GetDurationEnv("EXECUTOR_TIMEOUT", cfg.ExecutorTimeout)
	cfg.SigningKeyFile = GetEnv("SIGNING_KEY_FILE", cfg.SigningKeyFile)
	cfg.SigningKey = GetSecretFile(cfg.SigningKeyFile)
	cfg.CallbackBaseURL = GetEnv("CALLBACK_BASE_URL", cfg.CallbackBaseURL)

	cfg.StoreBackend = GetEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.PostgresDSN = GetEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = GetEnv("REDIS_ADDR", cfg.RedisAddr)

	cfg.DatasetDir = GetEnv("DATASET_DIR", cfg.DatasetDir)
	cfg.ArtifactDir = GetEnv("ARTIFACT_DIR", cfg.ArtifactDir)

	cfg.Sweep.Enabled = GetBoolEnv("SWEEP_ENABLED", cfg.Sweep.Enabled)
	cfg.Sweep.Interval = GetDurationEnv("SWEEP_INTERVAL", cfg.Sweep.Interval)
	cfg.Sweep.MinAge = GetDurationEnv("SWEEP_MIN_AGE", cfg.Sweep.MinAge)
	cfg.Sweep.MaxAttempts = GetIntEnv("SWEEP_MAX_ATTEMPTS", cfg.Sweep.MaxAttempts)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *ServiceConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *ServiceConfig) validate() error {
	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("store backend postgres requires POSTGRES_DSN")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("store backend redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.ExecutorURL == "" {
		return fmt.Errorf("executor URL must not be empty")
	}
	return nil
}
