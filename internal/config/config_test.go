package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	os.Setenv("TEST_GET_ENV", "custom")
	defer os.Unsetenv("TEST_GET_ENV")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	os.Setenv("TEST_INT_ENV", "123")
	defer os.Unsetenv("TEST_INT_ENV")

	result = GetIntEnv("TEST_INT_ENV", 42)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	os.Setenv("TEST_INVALID_INT", "not-a-number")
	defer os.Unsetenv("TEST_INVALID_INT")

	result = GetIntEnv("TEST_INVALID_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetBoolEnv(t *testing.T) {
	if GetBoolEnv("TEST_NONEXISTENT_BOOL", true) != true {
		t.Error("Expected default true")
	}

	os.Setenv("TEST_BOOL_ENV", "true")
	defer os.Unsetenv("TEST_BOOL_ENV")
	if GetBoolEnv("TEST_BOOL_ENV", false) != true {
		t.Error("Expected true")
	}

	os.Setenv("TEST_INVALID_BOOL", "maybe")
	defer os.Unsetenv("TEST_INVALID_BOOL")
	if GetBoolEnv("TEST_INVALID_BOOL", false) != false {
		t.Error("Expected default false for invalid bool")
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	os.Setenv("TEST_DURATION_ENV", "30s")
	defer os.Unsetenv("TEST_DURATION_ENV")

	result = GetDurationEnv("TEST_DURATION_ENV", defaultDuration)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}

	os.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	result = GetDurationEnv("TEST_INVALID_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v for invalid duration, got %v", defaultDuration, result)
	}
}

func TestGetSecretFile(t *testing.T) {
	result := GetSecretFile("")
	if result != "" {
		t.Errorf("Expected empty string for empty path, got %q", result)
	}

	result = GetSecretFile("/nonexistent/path/to/secret")
	if result != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", result)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	result = GetSecretFile(path)
	if result != "my-secret-value" {
		t.Errorf("Expected 'my-secret-value', got %q", result)
	}
}

func TestLoadServiceConfigDefaults(t *testing.T) {
	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig: %v", err)
	}
	if cfg.Port != "8080" || cfg.MetricsPort != "9090" {
		t.Errorf("ports = %s/%s, want 8080/9090", cfg.Port, cfg.MetricsPort)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("store backend = %s, want memory", cfg.StoreBackend)
	}
	if cfg.Sweep.Enabled {
		t.Error("sweep must be off by default")
	}
	if cfg.ExecutorTimeout != 5*time.Second {
		t.Errorf("executor timeout = %v, want 5s", cfg.ExecutorTimeout)
	}
}

func TestLoadServiceConfigYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
port: "8181"
executorUrl: http://trainer.test:9000/dispatch
storeBackend: redis
redisAddr: redis.test:6379
sweep:
  enabled: true
  interval: 10s
  maxAttempts: 7
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("CONFIG_FILE", path)
	defer os.Unsetenv("CONFIG_FILE")

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig: %v", err)
	}
	if cfg.Port != "8181" {
		t.Errorf("port = %s, want 8181 from the file", cfg.Port)
	}
	if cfg.StoreBackend != "redis" || cfg.RedisAddr != "redis.test:6379" {
		t.Errorf("backend = %s addr = %s", cfg.StoreBackend, cfg.RedisAddr)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Interval != 10*time.Second || cfg.Sweep.MaxAttempts != 7 {
		t.Errorf("sweep = %+v", cfg.Sweep)
	}
	// Fields absent from the file keep their defaults.
	if cfg.MetricsPort != "9090" {
		t.Errorf("metrics port = %s, want default 9090", cfg.MetricsPort)
	}
}

func TestLoadServiceConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: \"8181\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("CONFIG_FILE", path)
	os.Setenv("PORT", "9999")
	defer os.Unsetenv("CONFIG_FILE")
	defer os.Unsetenv("PORT")

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("port = %s, want env override 9999", cfg.Port)
	}
}

func TestLoadServiceConfigRejectsBadBackend(t *testing.T) {
	os.Setenv("STORE_BACKEND", "cassandra")
	defer os.Unsetenv("STORE_BACKEND")

	if _, err := LoadServiceConfig(); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestLoadServiceConfigRequiresBackendTarget(t *testing.T) {
	os.Setenv("STORE_BACKEND", "postgres")
	defer os.Unsetenv("STORE_BACKEND")

	if _, err := LoadServiceConfig(); err == nil {
		t.Fatal("expected error for postgres backend without DSN")
	}
}
