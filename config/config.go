// Package config provides configuration management for the LumiVerse essay
// scoring server. It covers the HTTP server, the upstream chat-completion
// endpoint, logging, request protection and the topic import limits.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is the environment variable consulted when the config file does
// not carry an API key.
const APIKeyEnv = "POE_API_KEY"

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Import         ImportConfig         `yaml:"import"`
	Session        SessionConfig        `yaml:"session"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Scoring calls can take a
	// while, so the default is generous (default: 120s)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig describes the chat-completion endpoint used for scoring.
type LLMConfig struct {
	// BaseURL is the API root; requests go to BaseURL + "/chat/completions"
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token.
	// Use environment variables (e.g., ${POE_API_KEY}) for secure configuration
	APIKey string `yaml:"api_key"`

	// Model is the model identifier sent with every request
	Model string `yaml:"model"`

	// MaxTokens caps the scoring response (default: 2000)
	MaxTokens int `yaml:"max_tokens"`

	// TipsMaxTokens caps the writing-tips response (default: 1000)
	TipsMaxTokens int `yaml:"tips_max_tokens"`

	// Temperature is the sampling temperature (default: 0.7)
	Temperature float64 `yaml:"temperature"`

	// RequestTimeout bounds a single upstream call. Zero leaves the
	// transport default in place.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TokenEncoding names the tiktoken encoding used to estimate prompt size.
	// Empty disables the estimate.
	TokenEncoding string `yaml:"token_encoding"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// CircuitBreakerConfig controls the breaker wrapped around upstream calls.
// The breaker never retries; it only fails fast while the endpoint is down.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxRequests is the number of requests allowed through when half-open
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for clearing counts
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// RateLimitConfig limits scoring requests per client IP.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the number of requests allowed per Window
	Requests int `yaml:"requests"`

	// Window is the refill period for Requests
	Window time.Duration `yaml:"window"`
}

// ImportConfig limits topic file uploads.
type ImportConfig struct {
	// MaxFileBytes is the largest accepted topic file (default: 1MiB)
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// SessionConfig controls the in-memory form sessions.
type SessionConfig struct {
	// CookieName names the session cookie
	CookieName string `yaml:"cookie_name"`

	// IdleTimeout drops sessions untouched for this long
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxSessions caps live sessions; the least recently used idle one is
	// evicted to make room (default: 10000)
	MaxSessions int `yaml:"max_sessions"`
}

// DefaultConfig returns the configuration used when no file is given and the
// base every file is decoded on top of.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},

		LLM: LLMConfig{
			BaseURL:       "https://api.poe.com/v1",
			Model:         "lumiverse",
			MaxTokens:     2000,
			TipsMaxTokens: 1000,
			Temperature:   0.7,
			TokenEncoding: "cl100k_base",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},

		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   time.Minute,
		},

		Import: ImportConfig{
			MaxFileBytes: 1 << 20,
		},

		Session: SessionConfig{
			CookieName:  "lumiverse_session",
			IdleTimeout: 2 * time.Hour,
			MaxSessions: 10000,
		},
	}
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references.
// Unset variables expand to the empty string.
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("invalid syntax: unterminated variable reference")
	}

	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			envKey := key[:i]
			defaultValue := key[i+2:]
			if val := os.Getenv(envKey); val != "" {
				return val
			}
			return defaultValue
		}
		return os.Getenv(key)
	})

	return result, nil
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	// Decode YAML on top of defaults. An empty document keeps the defaults.
	if strings.TrimSpace(expandedData) != "" {
		dec := yaml.NewDecoder(strings.NewReader(expandedData))
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// FromEnv returns the default configuration completed from the environment.
// It is used when the server runs without a config file.
func FromEnv() (*Config, error) {
	config := DefaultConfig()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(APIKeyEnv)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	// LLM validation
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("empty LLM base URL")
	}
	if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid LLM base URL: %q", c.LLM.BaseURL)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("empty LLM model")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("invalid max tokens: %d", c.LLM.MaxTokens)
	}
	if c.LLM.TipsMaxTokens <= 0 {
		return fmt.Errorf("invalid tips max tokens: %d", c.LLM.TipsMaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid temperature: %v", c.LLM.Temperature)
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("negative request timeout: %v", c.LLM.RequestTimeout)
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold == 0 {
			return fmt.Errorf("circuit breaker failure threshold must be positive")
		}
		if c.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("circuit breaker timeout must be positive")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("invalid rate limit requests: %d", c.RateLimit.Requests)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("invalid rate limit window: %v", c.RateLimit.Window)
		}
	}

	if c.Import.MaxFileBytes <= 0 {
		return fmt.Errorf("invalid import max file bytes: %d", c.Import.MaxFileBytes)
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("empty session cookie name")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("invalid session idle timeout: %v", c.Session.IdleTimeout)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("invalid session limit: %d", c.Session.MaxSessions)
	}

	return nil
}
