package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentbridge/dispatch"
	"github.com/hupe1980/agentbridge/logging"
)

// DefaultTimeout bounds a single delivery round trip.
const DefaultTimeout = 30 * time.Second

// Compile-time check that Client plugs into the router as its Deliverer.
var _ dispatch.Deliverer = (*Client)(nil)

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient is used for all deliveries.
	HTTPClient *http.Client

	// Timeout bounds a single delivery round trip.
	Timeout time.Duration

	// Logger receives delivery events.
	Logger logging.Logger
}

// Client delivers envelopes to peer agent endpoints.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     logging.Logger
}

// NewClient creates a delivery client.
func NewClient(optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		HTTPClient: http.DefaultClient,
		Timeout:    DefaultTimeout,
		Logger:     logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Deliver posts the envelope to the peer's endpoint and returns the peer's
// textual reply. An empty reply means the peer accepted the message without
// answering.
func (c *Client) Deliver(ctx context.Context, agentURL string, env dispatch.Envelope, conversationID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(message{
		Content:        content{Text: env.Render()},
		Role:           "user",
		ConversationID: conversationID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(agentURL), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("delivery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	var reply message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode delivery reply: %w", err)
	}

	c.logger.Debug("transport.deliver", "to", env.To, "duration_ms", time.Since(start).Milliseconds())

	return reply.Content.Text, nil
}

// endpoint normalizes an agent URL into its delivery endpoint. The /a2a path
// is appended exactly once.
func endpoint(agentURL string) string {
	trimmed := strings.TrimRight(agentURL, "/")
	if strings.HasSuffix(trimmed, "/a2a") {
		return trimmed
	}

	return trimmed + "/a2a"
}
