package config

import (
	"strings"
	"testing"
)

// TestEnvironmentVariableExpansion tests various scenarios of environment variable expansion
func TestEnvironmentVariableExpansion(t *testing.T) {
	testCases := []struct {
		name       string
		envVars    map[string]string
		yamlConfig string
		validate   func(*testing.T, *Config)
		wantErr    bool
		errMsg     string
	}{
		{
			name: "basic env var expansion",
			envVars: map[string]string{
				"LUMIVERSE_TEST_KEY": "test-key-123",
			},
			yamlConfig: `
llm:
    api_key: ${LUMIVERSE_TEST_KEY}`,
			validate: func(t *testing.T, c *Config) {
				if c.LLM.APIKey != "test-key-123" {
					t.Errorf("API key not expanded correctly, got %s, want test-key-123", c.LLM.APIKey)
				}
			},
		},
		{
			name:    "missing env var falls back to POE_API_KEY",
			envVars: map[string]string{APIKeyEnv: "poe-env-key"},
			yamlConfig: `
llm:
    api_key: ${LUMIVERSE_MISSING_KEY}`,
			validate: func(t *testing.T, c *Config) {
				if c.LLM.APIKey != "poe-env-key" {
					t.Errorf("expected fallback to %s, got %s", APIKeyEnv, c.LLM.APIKey)
				}
			},
		},
		{
			name: "multiple env vars in single value",
			envVars: map[string]string{
				"LUMIVERSE_API_HOST":    "api.poe.com",
				"LUMIVERSE_API_VERSION": "v1",
			},
			yamlConfig: `
llm:
    base_url: https://${LUMIVERSE_API_HOST}/${LUMIVERSE_API_VERSION}`,
			validate: func(t *testing.T, c *Config) {
				expected := "https://api.poe.com/v1"
				if c.LLM.BaseURL != expected {
					t.Errorf("Multiple env vars not expanded correctly, got %s, want %s",
						c.LLM.BaseURL, expected)
				}
			},
		},
		{
			name:    "default value syntax",
			envVars: map[string]string{},
			yamlConfig: `
llm:
    model: ${LUMIVERSE_UNSET_MODEL:-fallback-model}`,
			validate: func(t *testing.T, c *Config) {
				if c.LLM.Model != "fallback-model" {
					t.Errorf("default value not applied, got %s", c.LLM.Model)
				}
			},
		},
		{
			name:    "unterminated reference",
			envVars: map[string]string{},
			yamlConfig: `
llm:
    api_key: ${LUMIVERSE_BROKEN`,
			wantErr: true,
			errMsg:  "invalid syntax",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}
			if _, ok := tc.envVars[APIKeyEnv]; !ok {
				t.Setenv(APIKeyEnv, "")
			}

			config, err := Load(strings.NewReader(tc.yamlConfig))

			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tc.errMsg)
				} else if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("Expected error containing %q, got %v", tc.errMsg, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			tc.validate(t, config)
		})
	}
}

// TestConfigValidationWithEnvVars tests config validation with environment variables
func TestConfigValidationWithEnvVars(t *testing.T) {
	testCases := []struct {
		name       string
		envVars    map[string]string
		yamlConfig string
		wantErr    bool
		errMsg     string
	}{
		{
			name: "valid config with env vars",
			envVars: map[string]string{
				"LUMIVERSE_PORT": "8081",
				"LUMIVERSE_KEY":  "test-key",
			},
			yamlConfig: `
server:
    port: ${LUMIVERSE_PORT}
llm:
    api_key: ${LUMIVERSE_KEY}`,
			wantErr: false,
		},
		{
			name: "invalid port from env var",
			envVars: map[string]string{
				"LUMIVERSE_PORT": "-1",
			},
			yamlConfig: `
server:
    port: ${LUMIVERSE_PORT}`,
			wantErr: true,
			errMsg:  "invalid port",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}

			_, err := Load(strings.NewReader(tc.yamlConfig))

			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tc.errMsg)
				} else if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("Expected error containing %q, got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-only-key")

	config, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if config.LLM.APIKey != "env-only-key" {
		t.Errorf("expected API key from environment, got %q", config.LLM.APIKey)
	}
	if config.LLM.BaseURL != DefaultConfig().LLM.BaseURL {
		t.Errorf("expected default base URL, got %q", config.LLM.BaseURL)
	}
}

func TestFileKeyWinsOverEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")
	config, err := Load(strings.NewReader("llm:\n  api_key: file-key\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.LLM.APIKey != "file-key" {
		t.Errorf("expected file key, got %q", config.LLM.APIKey)
	}
}
