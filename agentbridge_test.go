package agentbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/logging"
)

func newTestBridge(agentID string, logic AgentLogic, mutate func(cfg *config.Config)) *Bridge {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	return New(agentID, logic, func(o *Options) {
		o.Config = cfg
		o.Logger = logging.NewNoOpLogger()
	})
}

func TestBridgeRouteCommand(t *testing.T) {
	b := newTestBridge("agentX", nil, nil)

	reply := b.Route(context.Background(), "/ping", "")
	assert.Equal(t, "[agentX] Pong!", reply)
}

func TestBridgeRouteChatWithLogic(t *testing.T) {
	b := newTestBridge("agentX", func(ctx context.Context, text, conversationID string) (string, error) {
		return "echo " + text, nil
	}, nil)

	reply := b.Route(context.Background(), "hello", "conv1")
	assert.Equal(t, "[agentX] echo hello", reply)
}

func TestBridgeHistory(t *testing.T) {
	b := newTestBridge("agentX", nil, nil)

	b.Route(context.Background(), "/ping", "conv1")
	b.Route(context.Background(), "hello", "conv1")

	turns, err := b.History("conv1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "command", turns[0].Kind)
	assert.Equal(t, "chat", turns[1].Kind)
}

func TestBridgeAgentIDFallsBackToConfig(t *testing.T) {
	b := newTestBridge("", nil, func(cfg *config.Config) {
		cfg.AgentID = "configured"
	})

	assert.Equal(t, "configured", b.AgentID())
}

func TestBridgeHandlerServesMessages(t *testing.T) {
	b := newTestBridge("agentX", nil, nil)

	ts := httptest.NewServer(b.Handler())
	defer ts.Close()

	body := `{"content": {"text": "/ping"}, "role": "user", "conversation_id": "conv1"}`

	resp, err := http.Post(ts.URL+"/a2a", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "[agentX] Pong!", reply.Content.Text)
}

func TestTwoBridgesExchangeMessages(t *testing.T) {
	bob := newTestBridge("bob", func(ctx context.Context, text, conversationID string) (string, error) {
		return "Hi there!", nil
	}, nil)

	tsBob := httptest.NewServer(bob.Handler())
	defer tsBob.Close()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lookup/bob", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]string{"agent_url": tsBob.URL})
	}))
	defer registry.Close()

	alice := newTestBridge("alice", nil, func(cfg *config.Config) {
		cfg.RegistryURL = registry.URL
	})

	reply := alice.Route(context.Background(), "@bob hello", "conv1")
	assert.Equal(t, "[bob] Response to alice: Hi there!", reply)

	// Bob saw the envelope, not the raw sigil text.
	turns, err := bob.History("conv1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "envelope", turns[0].Kind)
}

func TestBridgeSmitheryQueryWithoutKey(t *testing.T) {
	t.Setenv("SMITHERY_API_KEY", "")

	b := newTestBridge("agentX", nil, nil)

	reply := b.Route(context.Background(), "#smithery:foo query", "")
	assert.Equal(t, "Smithery API key not found. Set the SMITHERY_API_KEY environment variable", reply)
}

func TestBridgeStartRegistersAndShutsDown(t *testing.T) {
	registered := make(chan map[string]string, 1)

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/register" {
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)

			registered <- payload
		}
	}))
	defer registry.Close()

	b := newTestBridge("alice", nil, func(cfg *config.Config) {
		cfg.Host = "127.0.0.1"
		cfg.Port = 0
		cfg.RegistryURL = registry.URL
		cfg.PublicURL = "http://alice.example:6000"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() { errCh <- b.Start(ctx) }()

	select {
	case payload := <-registered:
		assert.Equal(t, "alice", payload["agent_id"])
		assert.Equal(t, "http://alice.example:6000", payload["agent_url"])
	case <-time.After(2 * time.Second):
		t.Fatal("registration not observed")
	}

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not shut down")
	}
}
