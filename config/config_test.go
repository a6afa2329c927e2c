package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadValidConfig(t *testing.T) {
	yamlConfig := `
server:
  port: 9090
  read_timeout: 45s
  write_timeout: 45s
  max_header_bytes: 2097152
  shutdown_timeout: 45s

llm:
  base_url: https://llm.example.com/v1
  api_key: key-from-file
  model: lumiverse
  max_tokens: 1500
  temperature: 0.5

logging:
  level: debug
  format: text

import:
  max_file_bytes: 4096
`

	config, err := Load(strings.NewReader(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to load valid config: %v", err)
	}

	if config.Server.Port != 9090 {
		t.Errorf("unexpected port: got %d, want %d", config.Server.Port, 9090)
	}
	if config.Server.ReadTimeout != 45*time.Second {
		t.Errorf("unexpected read timeout: got %v, want %v", config.Server.ReadTimeout, 45*time.Second)
	}

	if config.LLM.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("unexpected base url: got %s", config.LLM.BaseURL)
	}
	if config.LLM.APIKey != "key-from-file" {
		t.Errorf("unexpected api key: got %s", config.LLM.APIKey)
	}
	if config.LLM.MaxTokens != 1500 {
		t.Errorf("unexpected max tokens: got %d, want %d", config.LLM.MaxTokens, 1500)
	}
	// Untouched fields keep their defaults
	if config.LLM.TipsMaxTokens != 1000 {
		t.Errorf("unexpected tips max tokens: got %d, want %d", config.LLM.TipsMaxTokens, 1000)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("unexpected log level: got %s, want %s", config.Logging.Level, "debug")
	}
	if config.Logging.Format != "text" {
		t.Errorf("unexpected log format: got %s, want %s", config.Logging.Format, "text")
	}
	if config.Import.MaxFileBytes != 4096 {
		t.Errorf("unexpected max file bytes: got %d", config.Import.MaxFileBytes)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			name: "invalid port",
			config: `
server:
  port: -1
`,
			want: "invalid port",
		},
		{
			name: "invalid log level",
			config: `
logging:
  level: invalid
`,
			want: "invalid log level",
		},
		{
			name: "invalid log format",
			config: `
logging:
  format: xml
`,
			want: "invalid log format",
		},
		{
			name: "empty model",
			config: `
llm:
  model: ""
`,
			want: "empty LLM model",
		},
		{
			name: "relative base url",
			config: `
llm:
  base_url: /v1
`,
			want: "invalid LLM base URL",
		},
		{
			name: "temperature out of range",
			config: `
llm:
  temperature: 3
`,
			want: "invalid temperature",
		},
		{
			name: "zero rate limit",
			config: `
rate_limit:
  enabled: true
  requests: 0
`,
			want: "invalid rate limit requests",
		},
		{
			name: "zero import size",
			config: `
import:
  max_file_bytes: 0
`,
			want: "invalid import max file bytes",
		},
		{
			name: "negative session limit",
			config: `
session:
  max_sessions: -1
`,
			want: "invalid session limit",
		},
		{
			name:   "malformed yaml",
			config: "server: [",
			want:   "decode config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.config))
			if err == nil {
				t.Error("expected error, got nil")
			} else if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("unexpected error: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "https://api.poe.com/v1", config.LLM.BaseURL)
	assert.Equal(t, "lumiverse", config.LLM.Model)
	assert.Equal(t, 2000, config.LLM.MaxTokens)
	assert.Equal(t, 1000, config.LLM.TipsMaxTokens)
	assert.Equal(t, 0.7, config.LLM.Temperature)
	assert.Zero(t, config.LLM.RequestTimeout)
	assert.Equal(t, int64(1<<20), config.Import.MaxFileBytes)
	assert.Equal(t, 10000, config.Session.MaxSessions)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.NoError(t, config.Validate())
}

func TestLoadEmptyDocumentKeepsDefaults(t *testing.T) {
	config, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LLM.Model, config.LLM.Model)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LUMIVERSE_TEST_DOTENV=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LUMIVERSE_TEST_DOTENV") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("LUMIVERSE_TEST_DOTENV"))

	// Nothing to load is not an error
	assert.NoError(t, LoadEnv(filepath.Join(dir, "nope.env")))
}

func TestConfigWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumiverse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	cw, err := NewConfigWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer cw.Close()

	assert.Equal(t, "info", cw.GetCurrentConfig().Logging.Level)
	updates := cw.Subscribe()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-updates:
			if cfg.Logging.Level == "debug" {
				assert.Equal(t, "debug", cw.GetCurrentConfig().Logging.Level)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestConfigWatcherKeepsLastGoodConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumiverse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	cw, err := NewConfigWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer cw.Close()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -5\n"), 0o600))
	cw.handleConfigChange()

	assert.Equal(t, 9000, cw.GetCurrentConfig().Server.Port)
}

func TestStaticWatcher(t *testing.T) {
	cfg := DefaultConfig()
	var w Watcher = NewStaticWatcher(cfg)

	assert.Same(t, cfg, w.GetCurrentConfig())
	ch := w.Subscribe()
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, open := <-ch
	assert.False(t, open)
}
