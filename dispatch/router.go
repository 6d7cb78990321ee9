package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/hupe1980/agentbridge/conversation"
	"github.com/hupe1980/agentbridge/directory"
	"github.com/hupe1980/agentbridge/logging"
)

// AgentLogic produces this agent's answer to a conversational turn. It runs
// for plain chat and for non-reply peer messages.
type AgentLogic func(ctx context.Context, text, conversationID string) (string, error)

// Deliverer sends an envelope to a peer agent's endpoint and returns the
// peer's textual reply.
type Deliverer interface {
	Deliver(ctx context.Context, agentURL string, env Envelope, conversationID string) (string, error)
}

// Resolver looks up agents and tool servers. *directory.Client satisfies it.
type Resolver interface {
	LookupAgent(ctx context.Context, agentID string) (string, error)
	InvalidateAgent(agentID string)
	ResolveToolServer(ctx context.Context, provider directory.Provider, name string) (directory.ServerDescriptor, error)
	InvalidateServer(provider directory.Provider, name string)
	RegistryURL() string
	MCPRegistryURL() string
}

// QueryRunner executes a tool query against a resolved server.
// *runner.Runner satisfies it.
type QueryRunner interface {
	RunQuery(ctx context.Context, desc directory.ServerDescriptor, query string) (string, error)
}

// Options holds dependency overrides passed to NewRouter.
type Options struct {
	// Deliverer sends outbound envelopes. Without one, outbound messages
	// report a transport error.
	Deliverer Deliverer

	// Resolver resolves agent IDs and tool servers.
	Resolver Resolver

	// Runner executes tool queries.
	Runner QueryRunner

	// Store records conversation turns. Defaults to an in-memory store.
	Store conversation.Store

	// Logger receives routing events.
	Logger logging.Logger
}

// Router turns inbound texts into replies. Route never panics outward; every
// failure becomes an error reply so the transport layer always has something
// to send back.
type Router struct {
	agentID   string
	logic     AgentLogic
	deliverer Deliverer
	resolver  Resolver
	runner    QueryRunner
	store     conversation.Store
	logger    logging.Logger
}

// NewRouter creates a Router for the given agent.
func NewRouter(agentID string, logic AgentLogic, optFns ...func(o *Options)) *Router {
	opts := Options{
		Store:  conversation.NewInMemoryStore(),
		Logger: logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{
		agentID:   agentID,
		logic:     logic,
		deliverer: opts.Deliverer,
		resolver:  opts.Resolver,
		runner:    opts.Runner,
		store:     opts.Store,
		logger:    opts.Logger,
	}
}

// Route classifies text and produces the reply for it. An empty
// conversationID falls back to "default".
func (r *Router) Route(ctx context.Context, text, conversationID string) (reply string) {
	if conversationID == "" {
		conversationID = "default"
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("dispatch.panic", "recover", rec, "stack", string(debug.Stack()))

			reply = fmt.Sprintf("[%s] Error: %v", r.agentID, rec)
		}
	}()

	msg := Classify(text)

	r.logger.Debug("dispatch.route", "kind", msg.Kind.String(), "conversation_id", conversationID)

	switch msg.Kind {
	case KindEnvelope:
		reply = r.handleEnvelope(ctx, msg.Envelope, conversationID)
	case KindOutbound:
		reply = r.handleOutbound(ctx, msg, conversationID)
	case KindToolQuery:
		reply = r.handleToolQuery(ctx, msg)
	case KindCommand:
		reply = r.handleCommand(msg)
	default:
		reply = fmt.Sprintf("[%s] %s", r.agentID, r.invokeLogic(ctx, msg.Text, conversationID))
	}

	r.record(conversationID, msg, reply)

	return reply
}

// handleEnvelope processes a structured peer message. Replies are displayed
// and never fed to agent logic, which breaks request/response loops between
// two auto-responding agents.
func (r *Router) handleEnvelope(ctx context.Context, env *Envelope, conversationID string) string {
	if env.Reply {
		r.logger.Debug("dispatch.envelope.reply", "from", env.From)

		return fmt.Sprintf("[%s] %s", env.From, StripReplyBody(env.Body, r.agentID))
	}

	result := r.invokeLogic(ctx, env.Body, conversationID)

	return NewReplyBody(env.From, result)
}

// handleOutbound resolves the target agent and delivers the message.
func (r *Router) handleOutbound(ctx context.Context, msg Message, conversationID string) string {
	if msg.Args == "" {
		return "Invalid format. Use '@agent_id message'"
	}

	if r.resolver == nil {
		return fmt.Sprintf("[%s] Agent %s not found", r.agentID, msg.Target)
	}

	agentURL, err := r.resolver.LookupAgent(ctx, msg.Target)
	if err != nil {
		r.logger.Warn("dispatch.outbound.lookup_failed", "target", msg.Target, "error", err.Error())

		return fmt.Sprintf("[%s] Agent %s not found", r.agentID, msg.Target)
	}

	if r.deliverer == nil {
		return fmt.Sprintf("Error sending to %s: transport not configured", msg.Target)
	}

	env := Envelope{From: r.agentID, To: msg.Target, Body: msg.Args}

	peerReply, err := r.deliverer.Deliver(ctx, agentURL, env, conversationID)
	if err != nil {
		// A stale endpoint must not pin the target; next send re-resolves
		r.resolver.InvalidateAgent(msg.Target)

		r.logger.Warn("dispatch.outbound.failed", "target", msg.Target, "error", err.Error())

		return fmt.Sprintf("Error sending to %s: %v", msg.Target, err)
	}

	if strings.TrimSpace(peerReply) == "" {
		return fmt.Sprintf("Message sent to %s: %s", msg.Target, msg.Args)
	}

	return fmt.Sprintf("[%s] %s", msg.Target, peerReply)
}

// handleToolQuery resolves the tool server and runs the query through the
// model / tool loop.
func (r *Router) handleToolQuery(ctx context.Context, msg Message) string {
	if msg.Provider == "" {
		return "Invalid MCP message format. Use: #registry:server-name query"
	}

	provider, err := directory.ParseProvider(msg.Provider)
	if err != nil {
		return fmt.Sprintf("Unknown MCP registry '%s'. Supported: nanda, smithery", msg.Provider)
	}

	if r.resolver == nil {
		return "MCP registry URL not configured"
	}

	desc, err := r.resolver.ResolveToolServer(ctx, provider, msg.Server)
	if err != nil {
		return r.renderResolveError(err, msg.Server)
	}

	if r.runner == nil {
		return fmt.Sprintf("MCP server '%s' error: tool runner not configured", msg.Server)
	}

	header := providerHeader(provider, msg.Server)

	result, err := r.runner.RunQuery(ctx, desc, msg.Args)
	if err != nil {
		// Failed servers are re-resolved on the next query
		r.resolver.InvalidateServer(provider, msg.Server)

		r.logger.Warn("dispatch.tool_query.failed", "server", msg.Server, "error", err.Error())

		return header + err.Error()
	}

	return header + result
}

func (r *Router) renderResolveError(err error, server string) string {
	var notFound *directory.NotFoundError
	var resolution *directory.ResolutionError

	switch {
	case errors.Is(err, directory.ErrRegistryNotConfigured):
		return "MCP registry URL not configured"
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &resolution):
		return resolution.Error()
	default:
		return fmt.Sprintf("MCP server '%s' error: %v", server, err)
	}
}

// handleCommand answers local slash commands.
func (r *Router) handleCommand(msg Message) string {
	var body string

	switch msg.Command {
	case "help":
		body = helpText
	case "ping":
		body = "Pong!"
	case "status":
		body = r.statusText()
	default:
		body = fmt.Sprintf("Unknown command: %s. Use /help for available commands", msg.Command)
	}

	return fmt.Sprintf("[%s] %s", r.agentID, body)
}

const helpText = `Available commands:
/help - Show this help message
/ping - Check if agent is responsive
/status - Show agent status
@agent_id message - Send message to another agent
#nanda:server-name query - Query an MCP server via the NANDA registry
#smithery:server-name query - Query an MCP server via the Smithery registry`

func (r *Router) statusText() string {
	status := fmt.Sprintf("Agent: %s, Status: Running", r.agentID)

	if r.resolver == nil {
		return status
	}

	if url := r.resolver.RegistryURL(); url != "" {
		status += fmt.Sprintf(", Registry: %s", url)
	}

	if url := r.resolver.MCPRegistryURL(); url != "" {
		status += fmt.Sprintf(", MCP Registry: %s", url)
	}

	return status
}

func (r *Router) invokeLogic(ctx context.Context, text, conversationID string) string {
	if r.logic == nil {
		return text
	}

	result, err := r.logic(ctx, text, conversationID)
	if err != nil {
		r.logger.Error("dispatch.logic.error", "error", err.Error())

		return fmt.Sprintf("Error: %v", err)
	}

	return result
}

func (r *Router) record(conversationID string, msg Message, reply string) {
	if r.store == nil {
		return
	}

	turn := conversation.NewTurn(msg.Kind.String(), msg.Text, reply)

	if err := r.store.Append(conversationID, turn); err != nil {
		r.logger.Warn("dispatch.record.failed", "conversation_id", conversationID, "error", err.Error())
	}
}

// providerHeader builds the display prefix for tool query results.
func providerHeader(provider directory.Provider, server string) string {
	return fmt.Sprintf("%s MCP [%s]: ", titleCase(string(provider)), server)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
