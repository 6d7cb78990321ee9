// Package agentbridge provides a high-level façade over the dispatch,
// directory, runner and transport layers, enabling rapid construction of
// networked agents that exchange messages and query MCP tool servers. Most
// applications interact with this package by:
//  1. Creating a Bridge via New() with the agent's ID and conversational logic
//  2. Calling Start() to register with the agent registry and serve inbound
//     traffic, or Route() to handle texts directly when embedding
//  3. Inspecting exchanges via History()
//
// The façade delegates message handling to dispatch.Router while keeping
// setup ergonomics concise. All defaults are safe for local development;
// production deployments typically supply a tuned Config and a structured
// logger.
package agentbridge

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/conversation"
	"github.com/hupe1980/agentbridge/directory"
	"github.com/hupe1980/agentbridge/dispatch"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/model"
	"github.com/hupe1980/agentbridge/model/anthropic"
	"github.com/hupe1980/agentbridge/runner"
	"github.com/hupe1980/agentbridge/transport"
)

// shutdownGrace bounds how long Start waits for in-flight requests after its
// context is canceled.
const shutdownGrace = 5 * time.Second

// AgentLogic produces this agent's answer to a conversational turn. It is
// re-exported from dispatch so embedding applications only import the root
// package.
type AgentLogic = dispatch.AgentLogic

// Options configures the Bridge.
type Options struct {
	// Config supplies registry endpoints, the bind address and query
	// bounds. Nil falls back to config.FromEnv().
	Config *config.Config

	// Model answers tool queries. Defaults to the Anthropic adapter.
	Model model.Model

	// Store records conversation turns. Defaults to an in-memory store.
	Store conversation.Store

	// Logger receives bridge events. Defaults to a structured logger built
	// from Config.Logging.
	Logger logging.Logger

	// HTTPClient is used for registry calls and peer deliveries.
	HTTPClient *http.Client
}

// Bridge aggregates the routing, resolution and transport machinery of one
// agent.
type Bridge struct {
	agentID   string
	cfg       *config.Config
	logger    logging.Logger
	directory *directory.Client
	router    *dispatch.Router
	store     conversation.Store
	server    *transport.Server
}

// New creates a Bridge for the given agent. An empty agentID falls back to
// the configured one. The logic callback answers plain chat and non-reply
// peer messages; nil echoes the input.
func New(agentID string, logic AgentLogic, optFns ...func(o *Options)) *Bridge {
	opts := Options{
		HTTPClient: http.DefaultClient,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.FromEnv()
	}

	if agentID == "" {
		agentID = cfg.AgentID
	}

	if agentID == "" {
		agentID = "default"
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)
	}

	m := opts.Model
	if m == nil {
		m = anthropic.NewModel(func(o *anthropic.Options) {
			o.MaxTokens = 1024
		})
	}

	store := opts.Store
	if store == nil {
		store = conversation.NewInMemoryStore()
	}

	dir := directory.New(func(o *directory.Options) {
		o.RegistryURL = cfg.RegistryURL
		o.MCPRegistryURL = cfg.MCPRegistryURL
		o.SmitheryAPIKey = cfg.SmitheryAPIKey
		o.HTTPClient = opts.HTTPClient
		o.Logger = logger
	})

	run := runner.New(m, func(o *runner.Options) {
		o.MaxRounds = cfg.Query.MaxRounds
		o.Budget = cfg.Query.Budget
		o.MaxConcurrentQueries = cfg.Query.MaxConcurrent
		o.Logger = logger
	})

	deliverer := transport.NewClient(func(o *transport.ClientOptions) {
		o.HTTPClient = opts.HTTPClient
		o.Logger = logger
	})

	router := dispatch.NewRouter(agentID, logic, func(o *dispatch.Options) {
		o.Deliverer = deliverer
		o.Resolver = dir
		o.Runner = run
		o.Store = store
		o.Logger = logger
	})

	bridge := &Bridge{
		agentID:   agentID,
		cfg:       cfg,
		logger:    logger,
		directory: dir,
		router:    router,
		store:     store,
	}

	bridge.server = transport.NewServer(cfg.Addr(), agentID, router.Route, func(o *transport.ServerOptions) {
		o.Logger = logger
	})

	return bridge
}

// AgentID returns the bridge's agent identifier.
func (b *Bridge) AgentID() string {
	return b.agentID
}

// Handler returns the inbound HTTP handler for embedding the bridge into an
// existing server.
func (b *Bridge) Handler() http.Handler {
	return b.server.Handler()
}

// Start announces the agent to the registry when both a registry URL and a
// public URL are configured, then serves inbound traffic until the context
// is canceled or the listener fails. Registration failures are logged, not
// fatal: an unregistered agent still answers direct traffic.
func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.RegistryURL != "" && b.cfg.PublicURL != "" {
		if err := b.directory.Register(ctx, b.agentID, b.cfg.PublicURL); err != nil {
			b.logger.Warn("bridge.register.failed", "agent_id", b.agentID, "error", err.Error())
		}
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- b.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := b.server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return <-errCh
	}
}

// Stop shuts the inbound server down, waiting for in-flight requests.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.server.Shutdown(ctx)
}

// Route handles a single text directly, bypassing the HTTP transport. It is
// the entry point for embedding the bridge without running a server.
func (b *Bridge) Route(ctx context.Context, text, conversationID string) string {
	return b.router.Route(ctx, text, conversationID)
}

// History returns the recorded turns of a conversation. Unknown IDs yield an
// empty history.
func (b *Bridge) History(conversationID string) ([]conversation.Turn, error) {
	c, err := b.store.Get(conversationID)
	if err != nil {
		return nil, err
	}

	return c.Turns, nil
}
