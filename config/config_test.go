package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// clearBridgeEnv pins all recognized environment variables to empty so the
// ambient environment cannot leak into file-loading assertions.
func clearBridgeEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"AGENT_ID", "HOST", "PORT", "PUBLIC_URL", "REGISTRY_URL",
		"MCP_REGISTRY_URL", "SMITHERY_API_KEY", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Query.MaxRounds)
	assert.Equal(t, 4, cfg.Query.MaxConcurrent)
	assert.Equal(t, 60*time.Second, cfg.Query.Budget)
	assert.Equal(t, "0.0.0.0:6000", cfg.Addr())
}

func TestLoad(t *testing.T) {
	clearBridgeEnv(t)

	path := writeConfig(t, `
agent_id: agentX
port: 7100
registry_url: http://registry.example:6900
mcp_registry_url: http://mcp.example:8000
logging:
  level: debug
  format: text
query:
  max_rounds: 3
  budget: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agentX", cfg.AgentID)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "http://registry.example:6900", cfg.RegistryURL)
	assert.Equal(t, "http://mcp.example:8000", cfg.MCPRegistryURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Query.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.Query.Budget)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_TEST_REGISTRY", "http://expanded.example")

	path := writeConfig(t, `
agent_id: agentX
registry_url: ${BRIDGE_TEST_REGISTRY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://expanded.example", cfg.RegistryURL)
}

func TestLoadUnsetPlaceholderExpandsEmpty(t *testing.T) {
	clearBridgeEnv(t)

	path := writeConfig(t, `
agent_id: agentX
mcp_registry_url: ${BRIDGE_TEST_DOES_NOT_EXIST}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPRegistryURL)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("AGENT_ID", "env-agent")
	t.Setenv("PORT", "9100")
	t.Setenv("REGISTRY_URL", "http://env-registry.example")
	t.Setenv("SMITHERY_API_KEY", "sk-test")

	cfg := FromEnv()

	assert.Equal(t, "env-agent", cfg.AgentID)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "http://env-registry.example", cfg.RegistryURL)
	assert.Equal(t, "sk-test", cfg.SmitheryAPIKey)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "9200")

	path := writeConfig(t, `
agent_id: agentX
port: 7100
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port, "environment wins over the file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, `
agent_id: agentX
query:
  budget: not-a-duration
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query.budget")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"port out of range", func(c *Config) { c.Port = 0 }, "port"},
		{"negative rounds", func(c *Config) { c.Query.MaxRounds = -1 }, "max_rounds"},
		{"public url without registry", func(c *Config) { c.PublicURL = "http://me.example" }, "registry_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
