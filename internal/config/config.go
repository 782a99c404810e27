// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider names accepted in LLMProvider.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// Duration is a time.Duration that reads from JSON strings like "90s".
type Duration time.Duration

// UnmarshalJSON accepts either a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds every setting the service and CLI read. Values come from the
// environment first, then an optional JSON file, then command-line flags.
type Config struct {
	// Server
	Port int `json:"port,omitempty"`

	// Storage
	TemplatesDir string `json:"templates_dir,omitempty"`
	OutputDir    string `json:"output_dir,omitempty"`
	TempDir      string `json:"temp_dir,omitempty"`
	DatabaseURL  string `json:"database_url,omitempty"` // sqlite file path or postgres:// DSN

	// Processing
	Workers                int   `json:"workers,omitempty"`
	TokensPerMinuteLimit   int64 `json:"tokens_per_minute_limit,omitempty"`
	DocumentTokenThreshold int64 `json:"document_token_threshold,omitempty"`

	// LLM
	LLMProvider   string   `json:"llm_provider,omitempty"`
	Model         string   `json:"model,omitempty"`
	GeminiAPIKey  string   `json:"gemini_api_key,omitempty"`
	VertexProject string   `json:"vertex_project,omitempty"`
	VertexRegion  string   `json:"vertex_region,omitempty"`
	LLMTimeout    Duration `json:"llm_timeout,omitempty"`

	// Response cache
	RedisAddr     string   `json:"redis_addr,omitempty"`
	RedisPassword string   `json:"redis_password,omitempty"`
	CacheTTL      Duration `json:"cache_ttl,omitempty"`
	CacheDisabled bool     `json:"cache_disabled,omitempty"`

	// Microsoft Graph drive access
	GraphTenantID     string `json:"graph_tenant_id,omitempty"`
	GraphClientID     string `json:"graph_client_id,omitempty"`
	GraphClientSecret string `json:"graph_client_secret,omitempty"`

	// Logging
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                   8080,
		TemplatesDir:           "templates",
		OutputDir:              "output",
		TempDir:                os.TempDir(),
		DatabaseURL:            "docmeta.db",
		Workers:                4,
		TokensPerMinuteLimit:   1_000_000,
		DocumentTokenThreshold: 30_000,
		LLMProvider:            ProviderGemini,
		VertexRegion:           "us-central1",
		CacheTTL:               Duration(24 * time.Hour),
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// FromEnv reads configuration from environment variables over Defaults.
// A CACHE_TTL of 0 disables the response cache.
func FromEnv() Config {
	d := Defaults()
	cfg := Config{
		Port:                   getEnvInt("PORT", d.Port),
		TemplatesDir:           getEnvString("TEMPLATES_DIR", d.TemplatesDir),
		OutputDir:              getEnvString("OUTPUT_DIR", d.OutputDir),
		TempDir:                getEnvString("TEMP_DIR", d.TempDir),
		DatabaseURL:            getEnvString("DATABASE_URL", d.DatabaseURL),
		Workers:                getEnvInt("WORKERS", d.Workers),
		TokensPerMinuteLimit:   getEnvInt64("TOKENS_PER_MINUTE_LIMIT", d.TokensPerMinuteLimit),
		DocumentTokenThreshold: getEnvInt64("DOCUMENT_TOKEN_THRESHOLD", d.DocumentTokenThreshold),
		LLMProvider:            strings.ToLower(getEnvString("LLM_PROVIDER", d.LLMProvider)),
		Model:                  getEnvString("LLM_MODEL", d.Model),
		GeminiAPIKey:           getEnvString("GEMINI_API_KEY", ""),
		VertexProject:          getEnvString("GOOGLE_CLOUD_PROJECT", ""),
		VertexRegion:           getEnvString("VERTEX_AI_REGION", d.VertexRegion),
		LLMTimeout:             Duration(getEnvDuration("LLM_TIMEOUT", 0)),
		RedisAddr:              getEnvString("REDIS_ADDR", ""),
		RedisPassword:          getEnvString("REDIS_PASSWORD", ""),
		CacheTTL:               Duration(getEnvDuration("CACHE_TTL", time.Duration(d.CacheTTL))),
		GraphTenantID:          getEnvString("GRAPH_TENANT_ID", ""),
		GraphClientID:          getEnvString("GRAPH_CLIENT_ID", ""),
		GraphClientSecret:      getEnvString("GRAPH_CLIENT_SECRET", ""),
		LogLevel:               getEnvString("LOG_LEVEL", d.LogLevel),
		LogFormat:              getEnvString("LOG_FORMAT", d.LogFormat),
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheDisabled = true
	}
	return cfg
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Load reads the environment and, when path is set, overlays the JSON file.
func Load(path string) (*Config, error) {
	env := FromEnv()
	if path == "" {
		return &env, nil
	}

	fileCfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	merged := fileCfg.MergeWithDefaults(env)
	return &merged, nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	mergeString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	mergeString(&result.TemplatesDir, defaults.TemplatesDir)
	mergeString(&result.OutputDir, defaults.OutputDir)
	mergeString(&result.TempDir, defaults.TempDir)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.LLMProvider, defaults.LLMProvider)
	mergeString(&result.Model, defaults.Model)
	mergeString(&result.GeminiAPIKey, defaults.GeminiAPIKey)
	mergeString(&result.VertexProject, defaults.VertexProject)
	mergeString(&result.VertexRegion, defaults.VertexRegion)
	mergeString(&result.RedisAddr, defaults.RedisAddr)
	mergeString(&result.RedisPassword, defaults.RedisPassword)
	mergeString(&result.GraphTenantID, defaults.GraphTenantID)
	mergeString(&result.GraphClientID, defaults.GraphClientID)
	mergeString(&result.GraphClientSecret, defaults.GraphClientSecret)
	mergeString(&result.LogLevel, defaults.LogLevel)
	mergeString(&result.LogFormat, defaults.LogFormat)

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.TokensPerMinuteLimit == 0 {
		result.TokensPerMinuteLimit = defaults.TokensPerMinuteLimit
	}
	if result.DocumentTokenThreshold == 0 {
		result.DocumentTokenThreshold = defaults.DocumentTokenThreshold
	}
	if result.LLMTimeout == 0 {
		result.LLMTimeout = defaults.LLMTimeout
	}
	if result.CacheTTL == 0 {
		result.CacheTTL = defaults.CacheTTL
	}

	// Bools cannot distinguish unset from false; either source may disable.
	result.CacheDisabled = result.CacheDisabled || defaults.CacheDisabled

	return result
}

// Validate checks that the configuration has usable values.
// requireLLM is false for commands that never call the model.
func (c *Config) Validate(requireLLM bool) error {
	if c.Workers < 1 {
		return fmt.Errorf("config error: 'workers' must be at least 1, got %d", c.Workers)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.TokensPerMinuteLimit < 0 {
		return fmt.Errorf("config error: 'tokens_per_minute_limit' must be non-negative")
	}
	if c.DocumentTokenThreshold < 0 {
		return fmt.Errorf("config error: 'document_token_threshold' must be non-negative")
	}
	if c.LLMTimeout < 0 {
		return fmt.Errorf("config error: 'llm_timeout' must be non-negative")
	}
	if c.TemplatesDir == "" {
		return fmt.Errorf("config error: 'templates_dir' is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("config error: 'output_dir' is required")
	}

	if !requireLLM {
		return nil
	}
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("config error: GEMINI_API_KEY is required for provider %q", ProviderGemini)
		}
	case ProviderVertex:
		if c.VertexProject == "" || c.VertexRegion == "" {
			return fmt.Errorf("config error: GOOGLE_CLOUD_PROJECT and VERTEX_AI_REGION are required for provider %q", ProviderVertex)
		}
	default:
		return fmt.Errorf("config error: unknown llm_provider %q", c.LLMProvider)
	}
	return nil
}

// GraphConfigured reports whether drive credentials are present.
func (c *Config) GraphConfigured() bool {
	return c.GraphTenantID != "" && c.GraphClientID != "" && c.GraphClientSecret != ""
}
