// Package directory resolves agent identifiers and tool-server names into
// network endpoints using their respective registry services.
//
// Agent lookups go through a simple HTTP registry keyed by agent ID, with a
// static local table as fallback for development setups. Tool-server lookups
// are dispatched per provider, see ResolveToolServer. Successful resolutions
// are cached with a short TTL and invalidated on downstream failure, so a
// stale endpoint never pins a conversation to a dead peer.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/agentbridge/logging"
)

const (
	// DefaultTimeout bounds every registry round trip.
	DefaultTimeout = 10 * time.Second

	// DefaultCacheTTL is how long a resolved endpoint stays fresh.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCacheSize caps the number of cached resolutions.
	DefaultCacheSize = 256
)

// defaultLocalAgents is consulted when the registry is unreachable or has no
// entry. It mirrors the conventional local development layout.
func defaultLocalAgents() map[string]string {
	return map[string]string{
		"test_agent": "http://localhost:6000",
	}
}

// Options configures a Client.
type Options struct {
	// RegistryURL is the base URL of the agent registry. Empty disables
	// remote agent lookup; only the local table is consulted.
	RegistryURL string

	// MCPRegistryURL is the base URL of the tool-server registry used by
	// ProviderNanda.
	MCPRegistryURL string

	// SmitheryAPIKey authenticates smithery lookups. When empty the key is
	// read from the SMITHERY_API_KEY environment variable at call time.
	SmitheryAPIKey string

	// SmitheryBaseURL overrides the smithery registry endpoint.
	SmitheryBaseURL string

	// HTTPClient is used for all registry calls.
	HTTPClient *http.Client

	// Timeout bounds a single registry round trip.
	Timeout time.Duration

	// CacheTTL controls how long resolutions stay cached. Zero or negative
	// disables caching.
	CacheTTL time.Duration

	// CacheSize caps the number of cached entries.
	CacheSize int

	// LocalAgents maps agent IDs to URLs for registry-less operation.
	LocalAgents map[string]string

	// Logger receives resolution events.
	Logger logging.Logger
}

// Client resolves agents and tool servers against their registries.
type Client struct {
	registryURL     string
	mcpRegistryURL  string
	smitheryAPIKey  string
	smitheryBaseURL string
	httpClient      *http.Client
	timeout         time.Duration
	localAgents     map[string]string
	agents          *cache
	servers         *cache
	logger          logging.Logger
}

// New creates a directory client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		SmitheryBaseURL: "https://registry.smithery.ai",
		HTTPClient:      http.DefaultClient,
		Timeout:         DefaultTimeout,
		CacheTTL:        DefaultCacheTTL,
		CacheSize:       DefaultCacheSize,
		LocalAgents:     defaultLocalAgents(),
		Logger:          logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		registryURL:     strings.TrimRight(opts.RegistryURL, "/"),
		mcpRegistryURL:  strings.TrimRight(opts.MCPRegistryURL, "/"),
		smitheryAPIKey:  opts.SmitheryAPIKey,
		smitheryBaseURL: strings.TrimRight(opts.SmitheryBaseURL, "/"),
		httpClient:      opts.HTTPClient,
		timeout:         opts.Timeout,
		localAgents:     opts.LocalAgents,
		agents:          newCache(opts.CacheTTL, opts.CacheSize),
		servers:         newCache(opts.CacheTTL, opts.CacheSize),
		logger:          opts.Logger,
	}
}

// RegistryURL returns the configured agent registry base URL.
func (c *Client) RegistryURL() string {
	return c.registryURL
}

// MCPRegistryURL returns the configured tool-server registry base URL.
func (c *Client) MCPRegistryURL() string {
	return c.mcpRegistryURL
}

// LookupAgent resolves an agent ID to its endpoint URL. The registry is
// consulted first; on any failure the local table serves as fallback. A
// missing entry in both yields a NotFoundError.
func (c *Client) LookupAgent(ctx context.Context, agentID string) (string, error) {
	cacheKey := "agent:" + agentID
	if v, ok := c.agents.Get(cacheKey); ok {
		return v.(string), nil
	}

	if c.registryURL != "" {
		agentURL, err := c.lookupRemote(ctx, agentID)
		if err == nil {
			c.agents.Put(cacheKey, agentURL)
			return agentURL, nil
		}

		c.logger.Debug("directory.lookup.fallback", "agent_id", agentID, "error", err)
	}

	if agentURL, ok := c.localAgents[agentID]; ok {
		return agentURL, nil
	}

	return "", &NotFoundError{Kind: "agent", Name: agentID}
}

func (c *Client) lookupRemote(ctx context.Context, agentID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/lookup/%s", c.registryURL, url.PathEscape(agentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		AgentURL string `json:"agent_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}

	if payload.AgentURL == "" {
		return "", fmt.Errorf("lookup response missing agent_url")
	}

	return payload.AgentURL, nil
}

// InvalidateAgent drops a cached agent resolution, typically after a failed
// delivery, forcing a fresh lookup on the next send.
func (c *Client) InvalidateAgent(agentID string) {
	c.agents.Invalidate("agent:" + agentID)
}

// Register announces this agent's public URL to the registry. Registration
// failures are reported but are not fatal to the caller; agents can operate
// unregistered with direct addressing.
func (c *Client) Register(ctx context.Context, agentID, agentURL string) error {
	if c.registryURL == "" {
		return fmt.Errorf("registry URL not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"agent_id":  agentID,
		"agent_url": agentURL,
	})
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	endpoint := c.registryURL + "/register"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registration request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registration returned status %d", resp.StatusCode)
	}

	c.logger.Info("directory.register", "agent_id", agentID, "agent_url", agentURL)

	return nil
}
