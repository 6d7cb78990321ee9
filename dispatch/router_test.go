package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/conversation"
	"github.com/hupe1980/agentbridge/directory"
)

type fakeResolver struct {
	agents             map[string]string
	servers            map[string]directory.ServerDescriptor
	serverErr          error
	registryURL        string
	mcpRegistryURL     string
	invalidatedAgents  []string
	invalidatedServers []string
}

func (f *fakeResolver) LookupAgent(_ context.Context, agentID string) (string, error) {
	if url, ok := f.agents[agentID]; ok {
		return url, nil
	}
	return "", &directory.NotFoundError{Kind: "agent", Name: agentID}
}

func (f *fakeResolver) InvalidateAgent(agentID string) {
	f.invalidatedAgents = append(f.invalidatedAgents, agentID)
}

func (f *fakeResolver) ResolveToolServer(_ context.Context, provider directory.Provider, name string) (directory.ServerDescriptor, error) {
	if f.serverErr != nil {
		return directory.ServerDescriptor{}, f.serverErr
	}
	if desc, ok := f.servers[string(provider)+":"+name]; ok {
		return desc, nil
	}
	return directory.ServerDescriptor{}, &directory.NotFoundError{Kind: "server", Provider: provider, Name: name}
}

func (f *fakeResolver) InvalidateServer(provider directory.Provider, name string) {
	f.invalidatedServers = append(f.invalidatedServers, string(provider)+":"+name)
}

func (f *fakeResolver) RegistryURL() string { return f.registryURL }

func (f *fakeResolver) MCPRegistryURL() string { return f.mcpRegistryURL }

type fakeDeliverer struct {
	reply    string
	err      error
	lastURL  string
	lastEnv  Envelope
	lastConv string
}

func (f *fakeDeliverer) Deliver(_ context.Context, agentURL string, env Envelope, conversationID string) (string, error) {
	f.lastURL = agentURL
	f.lastEnv = env
	f.lastConv = conversationID
	return f.reply, f.err
}

type fakeRunner struct {
	result    string
	err       error
	lastDesc  directory.ServerDescriptor
	lastQuery string
}

func (f *fakeRunner) RunQuery(_ context.Context, desc directory.ServerDescriptor, query string) (string, error) {
	f.lastDesc = desc
	f.lastQuery = query
	return f.result, f.err
}

func TestRoutePing(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "/ping", "")
	assert.Equal(t, "[agentX] Pong!", reply)
}

func TestRouteHelp(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "/help", "")
	assert.True(t, strings.HasPrefix(reply, "[agentX] Available commands:"))
	assert.Contains(t, reply, "/help")
	assert.Contains(t, reply, "/ping")
	assert.Contains(t, reply, "/status")
	assert.Contains(t, reply, "@agent_id message")
	assert.Contains(t, reply, "#nanda:server-name query")
	assert.Contains(t, reply, "#smithery:server-name query")
}

func TestRouteStatus(t *testing.T) {
	resolver := &fakeResolver{
		registryURL:    "http://registry.example",
		mcpRegistryURL: "http://mcp.example",
	}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
	})

	reply := r.Route(context.Background(), "/status", "")
	assert.Equal(t, "[agentX] Agent: agentX, Status: Running, Registry: http://registry.example, MCP Registry: http://mcp.example", reply)
}

func TestRouteStatusWithoutRegistries(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "/status", "")
	assert.Equal(t, "[agentX] Agent: agentX, Status: Running", reply)
}

func TestRouteUnknownCommand(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "/bogus", "")
	assert.Equal(t, "[agentX] Unknown command: bogus. Use /help for available commands", reply)
}

func TestRouteOutboundSuccess(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]string{"bob": "http://bob.example:6000"}}
	deliverer := &fakeDeliverer{reply: "hi there"}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Deliverer = deliverer
	})

	reply := r.Route(context.Background(), "@bob hello", "conv-1")
	assert.Equal(t, "[bob] hi there", reply)

	assert.Equal(t, "http://bob.example:6000", deliverer.lastURL)
	assert.Equal(t, "agentX", deliverer.lastEnv.From)
	assert.Equal(t, "bob", deliverer.lastEnv.To)
	assert.Equal(t, "hello", deliverer.lastEnv.Body)
	assert.Equal(t, "conv-1", deliverer.lastConv)
}

func TestRouteOutboundEmptyPeerReply(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]string{"bob": "http://bob.example:6000"}}
	deliverer := &fakeDeliverer{reply: ""}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Deliverer = deliverer
	})

	reply := r.Route(context.Background(), "@bob hello", "")
	assert.Equal(t, "Message sent to bob: hello", reply)
}

func TestRouteOutboundAgentNotFound(t *testing.T) {
	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = &fakeResolver{}
	})

	reply := r.Route(context.Background(), "@bob hello", "")
	assert.Equal(t, "[agentX] Agent bob not found", reply)
}

func TestRouteOutboundInvalidFormat(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "@bob", "")
	assert.Equal(t, "Invalid format. Use '@agent_id message'", reply)
}

func TestRouteOutboundDeliveryFailureInvalidatesAgent(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]string{"bob": "http://bob.example:6000"}}
	deliverer := &fakeDeliverer{err: errors.New("connection refused")}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Deliverer = deliverer
	})

	reply := r.Route(context.Background(), "@bob hello", "")
	assert.Equal(t, "Error sending to bob: connection refused", reply)
	assert.Contains(t, resolver.invalidatedAgents, "bob")
}

func TestRouteEnvelopeInvokesLogic(t *testing.T) {
	var received string

	logic := func(_ context.Context, text, _ string) (string, error) {
		received = text
		return "the answer", nil
	}

	r := NewRouter("alice", logic)

	reply := r.Route(context.Background(), "FROM: bob\nTO: alice\nMESSAGE: what time is it", "")
	assert.Equal(t, "Response to bob: the answer", reply)
	assert.Equal(t, "what time is it", received)
}

func TestRouteEnvelopeReplySkipsLogic(t *testing.T) {
	calls := 0

	logic := func(_ context.Context, text, _ string) (string, error) {
		calls++
		return text, nil
	}

	r := NewRouter("alice", logic)

	reply := r.Route(context.Background(), "FROM: bob\nTO: alice\nMESSAGE: Response to alice: hi", "")
	assert.Equal(t, "[bob] hi", reply)
	assert.Equal(t, 0, calls, "replies must never trigger agent logic")
}

func TestRouteEnvelopeReplyForOtherAgent(t *testing.T) {
	calls := 0

	logic := func(_ context.Context, text, _ string) (string, error) {
		calls++
		return text, nil
	}

	r := NewRouter("alice", logic)

	reply := r.Route(context.Background(), "FROM: bob\nTO: alice\nMESSAGE: Response to carol: hi", "")
	assert.Equal(t, "[bob] Response to carol: hi", reply, "markers addressed elsewhere are shown as-is")
	assert.Equal(t, 0, calls)
}

func TestRouteEnvelopeLogicError(t *testing.T) {
	logic := func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("kaput")
	}

	r := NewRouter("alice", logic)

	reply := r.Route(context.Background(), "FROM: bob\nTO: alice\nMESSAGE: hello", "")
	assert.Equal(t, "Response to bob: Error: kaput", reply, "errors still carry the reply marker so the peer does not loop")
}

func TestRouteToolQuerySuccess(t *testing.T) {
	resolver := &fakeResolver{
		servers: map[string]directory.ServerDescriptor{
			"nanda:weather": {Provider: directory.ProviderNanda, Name: "weather", URL: "http://weather.example/mcp"},
		},
	}
	runner := &fakeRunner{result: "Sunny, 21C"}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Runner = runner
	})

	reply := r.Route(context.Background(), "#nanda:weather what is the weather in Berlin", "")
	assert.Equal(t, "Nanda MCP [weather]: Sunny, 21C", reply)
	assert.Equal(t, "what is the weather in Berlin", runner.lastQuery)
	assert.Equal(t, "weather", runner.lastDesc.Name)
}

func TestRouteToolQuerySmitheryHeader(t *testing.T) {
	resolver := &fakeResolver{
		servers: map[string]directory.ServerDescriptor{
			"smithery:exa": {Provider: directory.ProviderSmithery, Name: "exa", URL: "https://exa.example/mcp"},
		},
	}
	runner := &fakeRunner{result: "found it"}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Runner = runner
	})

	reply := r.Route(context.Background(), "#smithery:exa search", "")
	assert.Equal(t, "Smithery MCP [exa]: found it", reply)
}

func TestRouteToolQueryInvalidFormat(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "#weather what now", "")
	assert.Equal(t, "Invalid MCP message format. Use: #registry:server-name query", reply)
}

func TestRouteToolQueryUnknownRegistry(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "#foo:bar query", "")
	assert.Equal(t, "Unknown MCP registry 'foo'. Supported: nanda, smithery", reply)
}

func TestRouteToolQueryResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"registry not configured",
			directory.ErrRegistryNotConfigured,
			"MCP registry URL not configured",
		},
		{
			"server not found",
			&directory.NotFoundError{Kind: "server", Provider: directory.ProviderNanda, Name: "weather"},
			"MCP server 'weather' not found in nanda registry",
		},
		{
			"no server url",
			&directory.ResolutionError{Provider: directory.ProviderNanda, Name: "weather", Reason: "No server URL found for 'weather'"},
			"No server URL found for 'weather'",
		},
		{
			"missing api key",
			&directory.ResolutionError{Provider: directory.ProviderSmithery, Name: "weather", Reason: "Smithery API key not found. Set the SMITHERY_API_KEY environment variable"},
			"Smithery API key not found. Set the SMITHERY_API_KEY environment variable",
		},
		{
			"other failure",
			fmt.Errorf("registry request: connection refused"),
			"MCP server 'weather' error: registry request: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter("agentX", nil, func(o *Options) {
				o.Resolver = &fakeResolver{serverErr: tt.err}
			})

			reply := r.Route(context.Background(), "#nanda:weather query", "")
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestRouteToolQueryRunnerFailureInvalidatesServer(t *testing.T) {
	resolver := &fakeResolver{
		servers: map[string]directory.ServerDescriptor{
			"nanda:weather": {Provider: directory.ProviderNanda, Name: "weather"},
		},
	}
	runner := &fakeRunner{err: errors.New("Failed to connect to MCP server. Check server URL and authentication.")}

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Resolver = resolver
		o.Runner = runner
	})

	reply := r.Route(context.Background(), "#nanda:weather query", "")
	assert.Equal(t, "Nanda MCP [weather]: Failed to connect to MCP server. Check server URL and authentication.", reply)
	assert.Contains(t, resolver.invalidatedServers, "nanda:weather")
}

func TestRouteChat(t *testing.T) {
	logic := func(_ context.Context, text, _ string) (string, error) {
		return strings.ToUpper(text), nil
	}

	r := NewRouter("agentX", logic)

	reply := r.Route(context.Background(), "hello", "")
	assert.Equal(t, "[agentX] HELLO", reply)
}

func TestRouteChatWithoutLogicEchoes(t *testing.T) {
	r := NewRouter("agentX", nil)

	reply := r.Route(context.Background(), "hello", "")
	assert.Equal(t, "[agentX] hello", reply)
}

func TestRouteChatLogicError(t *testing.T) {
	logic := func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("kaput")
	}

	r := NewRouter("agentX", logic)

	reply := r.Route(context.Background(), "hello", "")
	assert.Equal(t, "[agentX] Error: kaput", reply)
}

func TestRouteRecoversFromPanic(t *testing.T) {
	logic := func(_ context.Context, _, _ string) (string, error) {
		panic("logic exploded")
	}

	r := NewRouter("agentX", logic)

	reply := r.Route(context.Background(), "hello", "")
	assert.Equal(t, "[agentX] Error: logic exploded", reply)
}

func TestRouteRecordsTurns(t *testing.T) {
	store := conversation.NewInMemoryStore()

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Store = store
	})

	_ = r.Route(context.Background(), "/ping", "conv-1")

	conv, err := store.Get("conv-1")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "command", conv.Turns[0].Kind)
	assert.Equal(t, "/ping", conv.Turns[0].Input)
	assert.Equal(t, "[agentX] Pong!", conv.Turns[0].Reply)
}

func TestRouteDefaultsConversationID(t *testing.T) {
	store := conversation.NewInMemoryStore()

	r := NewRouter("agentX", nil, func(o *Options) {
		o.Store = store
	})

	_ = r.Route(context.Background(), "hello", "")

	conv, err := store.Get("default")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 1)
}
