package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
)

// Provider identifies a tool-server registry.
type Provider string

const (
	// ProviderNanda resolves servers through the configured MCP registry.
	ProviderNanda Provider = "nanda"

	// ProviderSmithery resolves servers through the smithery.ai registry.
	ProviderSmithery Provider = "smithery"
)

// ParseProvider converts a raw provider token into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderNanda:
		return ProviderNanda, nil
	case ProviderSmithery:
		return ProviderSmithery, nil
	default:
		return "", fmt.Errorf("unknown tool registry '%s'", s)
	}
}

// ServerDescriptor is a resolved tool server, ready to connect to.
type ServerDescriptor struct {
	// Provider is the registry the server was resolved through.
	Provider Provider

	// Name is the registry-local server name.
	Name string

	// URL is the fully qualified endpoint, including any authentication
	// query parameters.
	URL string

	// Transport hints at the wire protocol ("sse" or streamable HTTP).
	// Empty means the connector default.
	Transport string

	// Config carries provider-specific server configuration.
	Config map[string]any

	// Description is the registry's human-readable summary, if any.
	Description string
}

// ResolveToolServer resolves a (provider, name) pair into a connectable
// server descriptor. Resolutions are cached; call InvalidateServer after a
// failed connection so the next query re-resolves.
func (c *Client) ResolveToolServer(ctx context.Context, provider Provider, name string) (ServerDescriptor, error) {
	cacheKey := string(provider) + ":" + name
	if v, ok := c.servers.Get(cacheKey); ok {
		return v.(ServerDescriptor), nil
	}

	var (
		desc ServerDescriptor
		err  error
	)

	switch provider {
	case ProviderSmithery:
		desc, err = c.resolveSmithery(ctx, name)
	case ProviderNanda:
		desc, err = c.resolveNanda(ctx, name)
	default:
		return ServerDescriptor{}, fmt.Errorf("unknown tool registry '%s'", provider)
	}

	if err != nil {
		return ServerDescriptor{}, err
	}

	c.servers.Put(cacheKey, desc)

	c.logger.Debug("directory.resolve", "provider", string(provider), "server", name, "url", desc.URL)

	return desc, nil
}

// InvalidateServer drops a cached tool-server resolution.
func (c *Client) InvalidateServer(provider Provider, name string) {
	c.servers.Invalidate(string(provider) + ":" + name)
}

func (c *Client) resolveNanda(ctx context.Context, name string) (ServerDescriptor, error) {
	if c.mcpRegistryURL == "" {
		return ServerDescriptor{}, ErrRegistryNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/mcp_servers/%s", c.mcpRegistryURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ServerDescriptor{}, fmt.Errorf("build registry request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ServerDescriptor{}, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ServerDescriptor{}, &NotFoundError{Kind: "server", Provider: ProviderNanda, Name: name}
	}

	var payload struct {
		ServerURL   string         `json:"server_url"`
		Endpoint    string         `json:"endpoint"`
		Transport   string         `json:"transport"`
		Config      map[string]any `json:"config"`
		Description string         `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ServerDescriptor{}, fmt.Errorf("decode registry response: %w", err)
	}

	serverURL := payload.ServerURL
	if serverURL == "" {
		serverURL = payload.Endpoint
	}
	if serverURL == "" {
		return ServerDescriptor{}, &ResolutionError{
			Provider: ProviderNanda,
			Name:     name,
			Reason:   fmt.Sprintf("No server URL found for '%s'", name),
		}
	}

	return ServerDescriptor{
		Provider:    ProviderNanda,
		Name:        name,
		URL:         serverURL,
		Transport:   payload.Transport,
		Config:      payload.Config,
		Description: payload.Description,
	}, nil
}

func (c *Client) resolveSmithery(ctx context.Context, name string) (ServerDescriptor, error) {
	apiKey := c.smitheryAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("SMITHERY_API_KEY")
	}
	if apiKey == "" {
		return ServerDescriptor{}, &ResolutionError{
			Provider: ProviderSmithery,
			Name:     name,
			Reason:   "Smithery API key not found. Set the SMITHERY_API_KEY environment variable",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/servers/%s", c.smitheryBaseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ServerDescriptor{}, fmt.Errorf("build smithery request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ServerDescriptor{}, fmt.Errorf("smithery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ServerDescriptor{}, &NotFoundError{Kind: "server", Provider: ProviderSmithery, Name: name}
	}

	var payload struct {
		DeploymentURL string `json:"deploymentUrl"`
		Description   string `json:"description"`
		Connections   []struct {
			Type          string `json:"type"`
			DeploymentURL string `json:"deploymentUrl"`
		} `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ServerDescriptor{}, fmt.Errorf("decode smithery response: %w", err)
	}

	// Preference order: hosted HTTP connection, then a stdio connection's
	// deployment URL, then the top-level deployment URL.
	var serverURL string

	for _, conn := range payload.Connections {
		if conn.Type == "http" && conn.DeploymentURL != "" {
			serverURL = conn.DeploymentURL
			break
		}
	}

	if serverURL == "" {
		for _, conn := range payload.Connections {
			if conn.Type == "stdio" && conn.DeploymentURL != "" {
				serverURL = conn.DeploymentURL
				break
			}
		}
	}

	if serverURL == "" {
		serverURL = payload.DeploymentURL
	}

	if serverURL == "" {
		return ServerDescriptor{}, &ResolutionError{
			Provider: ProviderSmithery,
			Name:     name,
			Reason:   fmt.Sprintf("No server URL found for '%s'", name),
		}
	}

	config := map[string]any{}

	finalURL, err := smitheryEndpoint(serverURL, apiKey, config)
	if err != nil {
		return ServerDescriptor{}, &ResolutionError{
			Provider: ProviderSmithery,
			Name:     name,
			Reason:   fmt.Sprintf("invalid deployment URL for '%s': %v", name, err),
		}
	}

	return ServerDescriptor{
		Provider:    ProviderSmithery,
		Name:        name,
		URL:         finalURL,
		Config:      config,
		Description: payload.Description,
	}, nil
}

// smitheryEndpoint appends the api_key and base64-encoded JSON config query
// parameters smithery deployments expect.
func smitheryEndpoint(serverURL, apiKey string, config map[string]any) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("config", base64.StdEncoding.EncodeToString(raw))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
