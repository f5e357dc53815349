package core

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend kind identifiers recognized by the configuration layer.
const (
	// BackendFMShim is the platform-native path: the on-device model is
	// reached through a dynamically loaded shim library.
	BackendFMShim = "fmshim"

	// BackendOpenAI adapts any OpenAI-compatible chat-completion server.
	BackendOpenAI = "openai"

	// BackendEcho is a deterministic in-process backend for tests and
	// development machines without a live model.
	BackendEcho = "echo"
)

// Configuration defaults.
const (
	DefaultRequestTimeoutSeconds = 120
	DefaultMaxConcurrent         = 4
	DefaultOpenAIModel           = "gpt-4o-mini"
	DefaultLogFilePath           = "libai.log"
)

// Config holds all configuration values for a library instance.
// Zero value fields take documented defaults when passed through Load
// or ApplyDefaults.
type Config struct {
	// Backend selects the inference engine: fmshim, openai, or echo.
	Backend string `yaml:"backend"`

	// ShimPath is the platform shim library location (fmshim backend).
	// Empty means probe the well-known install locations.
	ShimPath string `yaml:"shim_path"`

	// OpenAI-compatible backend settings.
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`

	// RequestTimeout bounds a single generation round trip.
	RequestTimeout time.Duration `yaml:"-"`

	// MaxConcurrent bounds in-flight backend calls across all contexts.
	// Zero means DefaultMaxConcurrent; negative means unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`

	// Logging configuration. Logging is off unless LogEnabled is set;
	// an embedding host opts in rather than getting surprise log files.
	LogEnabled  bool   `yaml:"log_enabled"`
	LogFilePath string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
	Development bool   `yaml:"development"`

	// HistoryPath enables SQLite transcript persistence when non-empty.
	HistoryPath string `yaml:"history_path"`

	// Default generation options applied when neither the session nor the
	// call supplies a value.
	DefaultTemperature  float64 `yaml:"default_temperature"`
	DefaultMaxTokens    int     `yaml:"default_max_tokens"`
	DefaultSystemPrompt string  `yaml:"default_system_prompt"`
}

// yamlConfig mirrors Config for file decoding, with the timeout expressed
// in seconds the way the environment variable expresses it.
type yamlConfig struct {
	Config                `yaml:",inline"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// LoadConfig builds the effective configuration with documented precedence:
// defaults < YAML file < environment. A .env file is loaded first when
// present (path override via LIBAI_ENV_FILE) so it participates as
// environment.
//
// The YAML file path comes from LIBAI_CONFIG_FILE, defaulting to
// "libai.yaml" next to the process; a missing file is not an error.
//
// Example:
//
//	cfg, err := LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfig() (Config, error) {
	// .env participates as environment; missing file is fine.
	envFile := GetEnvOrDefault("LIBAI_ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()

	configFile := GetEnvOrDefault("LIBAI_CONFIG_FILE", "libai.yaml")
	if data, err := os.ReadFile(configFile); err == nil {
		var fileCfg yamlConfig
		fileCfg.Config = cfg
		fileCfg.RequestTimeoutSeconds = int(cfg.RequestTimeout / time.Second)
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", configFile, err)
		}
		cfg = fileCfg.Config
		cfg.RequestTimeout = time.Duration(fileCfg.RequestTimeoutSeconds) * time.Second
	}

	cfg = applyEnvOverrides(cfg)
	cfg = ApplyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults: echo backend, logging off,
// no persistence. This is the configuration tests start from.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendEcho,
		OpenAIModel:    DefaultOpenAIModel,
		RequestTimeout: DefaultRequestTimeoutSeconds * time.Second,
		MaxConcurrent:  DefaultMaxConcurrent,
		LogFilePath:    DefaultLogFilePath,
		LogLevel:       "info",
	}
}

// applyEnvOverrides layers LIBAI_* environment variables over cfg.
func applyEnvOverrides(cfg Config) Config {
	cfg.Backend = GetEnvOrDefault("LIBAI_BACKEND", cfg.Backend)
	cfg.ShimPath = GetEnvOrDefault("LIBAI_SHIM_PATH", cfg.ShimPath)
	cfg.OpenAIBaseURL = GetEnvOrDefault("LIBAI_OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = GetEnvOrDefault("LIBAI_OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIAPIKey = GetEnvOrDefault("LIBAI_OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.RequestTimeout = ParseDurationEnv("LIBAI_REQUEST_TIMEOUT_SECONDS", int(cfg.RequestTimeout/time.Second))
	cfg.MaxConcurrent = ParseIntEnv("LIBAI_MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.LogEnabled = ParseBoolEnv("LIBAI_LOG_ENABLED", cfg.LogEnabled)
	cfg.LogFilePath = GetEnvOrDefault("LIBAI_LOG_FILE", cfg.LogFilePath)
	cfg.LogLevel = GetEnvOrDefault("LIBAI_LOG_LEVEL", cfg.LogLevel)
	cfg.Development = ParseBoolEnv("LIBAI_DEV", cfg.Development)
	cfg.HistoryPath = GetEnvOrDefault("LIBAI_HISTORY_PATH", cfg.HistoryPath)
	cfg.DefaultTemperature = ParseFloat64Env("LIBAI_DEFAULT_TEMPERATURE", cfg.DefaultTemperature)
	cfg.DefaultMaxTokens = ParseIntEnv("LIBAI_DEFAULT_MAX_TOKENS", cfg.DefaultMaxTokens)
	cfg.DefaultSystemPrompt = GetEnvOrDefault("LIBAI_DEFAULT_SYSTEM_PROMPT", cfg.DefaultSystemPrompt)
	return cfg
}

// ApplyDefaults fills zero values with documented defaults.
// This is a pure function with no side effects.
func ApplyDefaults(cfg Config) Config {
	if cfg.Backend == "" {
		cfg.Backend = BackendEcho
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = DefaultOpenAIModel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeoutSeconds * time.Second
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.LogFilePath == "" {
		cfg.LogFilePath = DefaultLogFilePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// ValidateConfig checks the configuration for errors that would only
// surface later as confusing backend failures.
func ValidateConfig(cfg Config) error {
	switch cfg.Backend {
	case BackendFMShim, BackendOpenAI, BackendEcho:
	default:
		return ErrInvalidBackend(cfg.Backend)
	}

	if cfg.Backend == BackendOpenAI && cfg.OpenAIBaseURL != "" {
		parsed, err := url.Parse(cfg.OpenAIBaseURL)
		if err != nil {
			return ErrInvalidBaseURL(cfg.OpenAIBaseURL, err.Error())
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return ErrInvalidBaseURL(cfg.OpenAIBaseURL, "scheme must be http or https")
		}
		if parsed.Host == "" {
			return ErrInvalidBaseURL(cfg.OpenAIBaseURL, "missing host")
		}
	}

	return nil
}
