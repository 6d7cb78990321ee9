// Package config resolves bridge configuration from three layers: built-in
// defaults, an optional YAML file with ${VAR} environment expansion, and
// process environment variables. Later layers override earlier ones; explicit
// functional options on the bridge override all of them.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the inbound transport port.
	DefaultPort = 6000

	// DefaultHost binds the inbound transport to all interfaces.
	DefaultHost = "0.0.0.0"
)

// Config is the resolved bridge configuration.
type Config struct {
	// AgentID identifies this agent toward peers and registries.
	AgentID string `yaml:"agent_id"`

	// Host is the bind address of the inbound transport.
	Host string `yaml:"host"`

	// Port is the bind port of the inbound transport.
	Port int `yaml:"port"`

	// PublicURL is the externally reachable base URL announced during
	// registration. Empty disables registration.
	PublicURL string `yaml:"public_url"`

	// RegistryURL is the agent registry base URL. Empty disables remote
	// agent lookup and registration.
	RegistryURL string `yaml:"registry_url"`

	// MCPRegistryURL is the tool-server registry base URL for nanda lookups.
	MCPRegistryURL string `yaml:"mcp_registry_url"`

	// SmitheryAPIKey authenticates smithery registry lookups.
	SmitheryAPIKey string `yaml:"smithery_api_key"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging"`

	// Query bounds the tool-query loop.
	Query QueryConfig `yaml:"query"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// QueryConfig bounds tool-query execution.
type QueryConfig struct {
	// MaxRounds caps model calls per tool query.
	MaxRounds int `yaml:"max_rounds"`

	// MaxConcurrent caps tool queries running at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// Budget is the wall-clock limit per tool query.
	Budget time.Duration `yaml:"-"`

	// BudgetRaw is the YAML form of Budget ("60s", "2m").
	BudgetRaw string `yaml:"budget"`
}

// envPattern matches ${VAR_NAME} placeholders in config files.
var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns the built-in configuration baseline.
func Default() *Config {
	return &Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Query: QueryConfig{
			MaxRounds:     8,
			MaxConcurrent: 4,
			Budget:        60 * time.Second,
		},
	}
}

// FromEnv returns the default configuration overlaid with recognized
// environment variables: AGENT_ID, HOST, PORT, PUBLIC_URL, REGISTRY_URL,
// MCP_REGISTRY_URL, SMITHERY_API_KEY, LOG_LEVEL and LOG_FORMAT.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()

	return cfg
}

// Load reads a YAML configuration file, expands ${VAR} placeholders from the
// environment, overlays recognized environment variables and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	expanded := expandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// expandEnv replaces ${VAR_NAME} placeholders with environment values.
// Unset variables expand to the empty string.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyEnv overlays recognized environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENT_ID"); v != "" {
		c.AgentID = v
	}

	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}

	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}

	if v := os.Getenv("REGISTRY_URL"); v != "" {
		c.RegistryURL = v
	}

	if v := os.Getenv("MCP_REGISTRY_URL"); v != "" {
		c.MCPRegistryURL = v
	}

	if v := os.Getenv("SMITHERY_API_KEY"); v != "" {
		c.SmitheryAPIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// parseDurations converts raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	if c.Query.BudgetRaw != "" {
		budget, err := time.ParseDuration(c.Query.BudgetRaw)
		if err != nil {
			return fmt.Errorf("parse query.budget %q: %w", c.Query.BudgetRaw, err)
		}

		c.Query.Budget = budget
	}

	return nil
}

// Validate checks the configuration for values that would break the bridge at
// runtime. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if c.Query.MaxRounds < 0 {
		return fmt.Errorf("query.max_rounds must not be negative")
	}

	if c.Query.Budget < 0 {
		return fmt.Errorf("query.budget must not be negative")
	}

	if c.PublicURL != "" && c.RegistryURL == "" {
		return fmt.Errorf("public_url requires registry_url for registration")
	}

	return nil
}

// Addr returns the host:port bind address for the inbound transport.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
