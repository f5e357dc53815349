package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearLibaiEnv unsets every LIBAI_* variable the config layer reads so
// tests start from a clean environment.
func clearLibaiEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LIBAI_ENV_FILE", "LIBAI_CONFIG_FILE", "LIBAI_BACKEND",
		"LIBAI_SHIM_PATH", "LIBAI_OPENAI_BASE_URL", "LIBAI_OPENAI_MODEL",
		"LIBAI_OPENAI_API_KEY", "LIBAI_REQUEST_TIMEOUT_SECONDS",
		"LIBAI_MAX_CONCURRENT", "LIBAI_LOG_ENABLED", "LIBAI_LOG_FILE",
		"LIBAI_LOG_LEVEL", "LIBAI_DEV", "LIBAI_HISTORY_PATH",
		"LIBAI_DEFAULT_TEMPERATURE", "LIBAI_DEFAULT_MAX_TOKENS",
		"LIBAI_DEFAULT_SYSTEM_PROMPT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendEcho {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendEcho)
	}
	if cfg.RequestTimeout != DefaultRequestTimeoutSeconds*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, DefaultRequestTimeoutSeconds*time.Second)
	}
	if cfg.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, DefaultMaxConcurrent)
	}
	if cfg.LogEnabled {
		t.Error("logging should be off by default")
	}
	if cfg.HistoryPath != "" {
		t.Error("history persistence should be off by default")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearLibaiEnv(t)
	// Point the env and config file lookups at an empty directory.
	dir := t.TempDir()
	t.Setenv("LIBAI_ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("LIBAI_CONFIG_FILE", filepath.Join(dir, "absent.yaml"))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend != BackendEcho {
		t.Errorf("Backend = %q, want default %q", cfg.Backend, BackendEcho)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	clearLibaiEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "libai.yaml")
	yamlContent := []byte("backend: openai\nopenai_model: from-yaml\nrequest_timeout_seconds: 30\nmax_concurrent: 2\n")
	if err := os.WriteFile(yamlPath, yamlContent, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LIBAI_ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("LIBAI_CONFIG_FILE", yamlPath)
	t.Setenv("LIBAI_OPENAI_MODEL", "from-env")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend != BackendOpenAI {
		t.Errorf("Backend = %q, want yaml value %q", cfg.Backend, BackendOpenAI)
	}
	if cfg.OpenAIModel != "from-env" {
		t.Errorf("OpenAIModel = %q, want env to win over yaml", cfg.OpenAIModel)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s from yaml", cfg.RequestTimeout)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2 from yaml", cfg.MaxConcurrent)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	clearLibaiEnv(t)
	dir := t.TempDir()

	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("LIBAI_BACKEND=echo\nLIBAI_MAX_CONCURRENT=7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LIBAI_ENV_FILE", envPath)
	t.Setenv("LIBAI_CONFIG_FILE", filepath.Join(dir, "absent.yaml"))
	defer func() {
		// godotenv sets real process env; undo what the file introduced.
		os.Unsetenv("LIBAI_BACKEND")
		os.Unsetenv("LIBAI_MAX_CONCURRENT")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MaxConcurrent != 7 {
		t.Errorf("MaxConcurrent = %d, want 7 from .env file", cfg.MaxConcurrent)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearLibaiEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(yamlPath, []byte("backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIBAI_ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("LIBAI_CONFIG_FILE", yamlPath)

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail on malformed yaml")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  bool
		wantCode string
	}{
		{
			name:    "default config is valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:     "unknown backend",
			mutate:   func(c *Config) { c.Backend = "cloud" },
			wantErr:  true,
			wantCode: ErrCodeInvalidBackend,
		},
		{
			name: "openai with valid base url",
			mutate: func(c *Config) {
				c.Backend = BackendOpenAI
				c.OpenAIBaseURL = "http://localhost:8080/v1"
			},
			wantErr: false,
		},
		{
			name: "openai with bad scheme",
			mutate: func(c *Config) {
				c.Backend = BackendOpenAI
				c.OpenAIBaseURL = "ftp://localhost/v1"
			},
			wantErr:  true,
			wantCode: ErrCodeInvalidBaseURL,
		},
		{
			name: "openai with missing host",
			mutate: func(c *Config) {
				c.Backend = BackendOpenAI
				c.OpenAIBaseURL = "http://"
			},
			wantErr:  true,
			wantCode: ErrCodeInvalidBaseURL,
		},
		{
			name: "fmshim without path is valid (probed at init)",
			mutate: func(c *Config) {
				c.Backend = BackendFMShim
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ValidateConfig() should have failed")
				}
				if got := GetErrorCode(err); got != tt.wantCode {
					t.Errorf("error code = %q, want %q", got, tt.wantCode)
				}
			} else if err != nil {
				t.Errorf("ValidateConfig() error = %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := ApplyDefaults(Config{})

	if cfg.Backend != BackendEcho {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendEcho)
	}
	if cfg.OpenAIModel != DefaultOpenAIModel {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, DefaultOpenAIModel)
	}
	if cfg.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, DefaultMaxConcurrent)
	}

	// Negative MaxConcurrent means unbounded and is preserved.
	unbounded := ApplyDefaults(Config{MaxConcurrent: -1})
	if unbounded.MaxConcurrent != -1 {
		t.Errorf("MaxConcurrent = %d, want -1 preserved", unbounded.MaxConcurrent)
	}
}
