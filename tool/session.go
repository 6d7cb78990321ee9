package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentbridge/directory"
	"github.com/hupe1980/agentbridge/internal/util"
	"github.com/hupe1980/agentbridge/logging"
)

// Session is a live connection to a remote MCP tool server. Each tool listed
// by the server is exposed as a Tool whose Call is proxied over the session.
//
// Sessions are opened per query and must be closed when the query completes;
// they are not pooled or reused across conversations.
type Session struct {
	descriptor directory.ServerDescriptor
	client     *mcpclient.Client
	tools      []Tool
	index      map[string]Tool
	logger     logging.Logger
}

// SessionOptions configures how a Session is established.
type SessionOptions struct {
	// ClientName identifies this client during the MCP handshake.
	ClientName string

	// ClientVersion is reported alongside ClientName.
	ClientVersion string

	// Headers are attached to every HTTP request of the session.
	Headers map[string]string

	// Logger receives session lifecycle and tool call events.
	Logger logging.Logger
}

// OpenSession connects to the tool server described by desc, performs the
// MCP handshake and lists the server's tools. The descriptor's transport
// hint selects SSE; everything else uses streamable HTTP.
//
// Failures to connect, initialize or list are returned as *ToolError with
// code CONNECTION_ERROR so callers can distinguish reachability problems
// from tool execution failures.
func OpenSession(ctx context.Context, desc directory.ServerDescriptor, optFns ...func(o *SessionOptions)) (*Session, error) {
	opts := SessionOptions{
		ClientName:    "agentbridge",
		ClientVersion: "0.1.0",
		Logger:        logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	c, err := newMCPClient(desc, opts.Headers)
	if err != nil {
		return nil, NewToolError(desc.Name, fmt.Sprintf("create client: %v", err), CodeConnection)
	}

	if err := c.Start(ctx); err != nil {
		return nil, NewToolError(desc.Name, fmt.Sprintf("start transport: %v", err), CodeConnection)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    opts.ClientName,
		Version: opts.ClientVersion,
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, NewToolError(desc.Name, fmt.Sprintf("initialize: %v", err), CodeConnection)
	}

	listRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, NewToolError(desc.Name, fmt.Sprintf("list tools: %v", err), CodeConnection)
	}

	s := &Session{
		descriptor: desc,
		client:     c,
		index:      make(map[string]Tool, len(listRes.Tools)),
		logger:     opts.Logger,
	}

	for _, t := range listRes.Tools {
		rt := &remoteTool{
			client:      c,
			server:      desc.Name,
			name:        t.Name,
			description: t.Description,
			parameters:  schemaFromMCP(t),
			logger:      opts.Logger,
		}
		s.tools = append(s.tools, rt)
		s.index[rt.name] = rt
	}

	// The descriptor URL may embed credentials, so only name metadata is logged.
	opts.Logger.Info("tool.session.open",
		"server", desc.Name,
		"provider", string(desc.Provider),
		"tools", len(s.tools),
	)

	return s, nil
}

// Descriptor returns the resolved server this session is connected to.
func (s *Session) Descriptor() directory.ServerDescriptor {
	return s.descriptor
}

// Tools returns the server's tools in listing order.
func (s *Session) Tools() []Tool {
	return s.tools
}

// Tool returns the named tool, if the server listed it.
func (s *Session) Tool(name string) (Tool, bool) {
	t, ok := s.index[name]
	return t, ok
}

// Close shuts down the underlying transport. The session's tools must not be
// called afterwards.
func (s *Session) Close() error {
	s.logger.Debug("tool.session.close", "server", s.descriptor.Name)
	return s.client.Close()
}

func newMCPClient(desc directory.ServerDescriptor, headers map[string]string) (*mcpclient.Client, error) {
	if strings.EqualFold(desc.Transport, "sse") {
		return mcpclient.NewSSEMCPClient(desc.URL)
	}

	if len(headers) > 0 {
		return mcpclient.NewStreamableHttpClient(desc.URL, transport.WithHTTPHeaders(headers))
	}

	return mcpclient.NewStreamableHttpClient(desc.URL)
}

// schemaFromMCP converts an MCP tool listing into the minimal JSON schema
// shape used by util.ValidateParameters and the model adapters.
func schemaFromMCP(t mcp.Tool) map[string]any {
	schemaType := t.InputSchema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	schema := map[string]any{"type": schemaType}

	if t.InputSchema.Properties != nil {
		schema["properties"] = t.InputSchema.Properties
	}

	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}

	return schema
}

// remoteTool proxies a single server-listed tool over the session transport.
type remoteTool struct {
	client      *mcpclient.Client
	server      string
	name        string
	description string
	parameters  map[string]any
	logger      logging.Logger
}

// Name returns the server-assigned tool name.
func (t *remoteTool) Name() string { return t.name }

// Description returns the server-provided tool description.
func (t *remoteTool) Description() string { return t.description }

// Parameters returns the input schema advertised by the server.
func (t *remoteTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the advertised schema, invokes the remote tool
// and returns the concatenated text content of the result.
//
// Error Semantics:
//
//	validation failure        -> *ToolError{Code: "VALIDATION_ERROR"}
//	deadline exceeded         -> *ToolError{Code: "TIMEOUT"}
//	transport failure         -> *ToolError{Code: "CONNECTION_ERROR"}
//	server-reported IsError   -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *remoteTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name, "server", t.server)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = t.name
	callReq.Params.Arguments = args

	res, err := t.client.CallTool(ctx, callReq)
	if err != nil {
		code := CodeConnection
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = CodeTimeout
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, NewToolError(t.name, err.Error(), code)
	}

	text := textFromContent(res.Content)

	if res.IsError {
		msg := text
		if msg == "" {
			msg = "tool reported an error"
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", msg)

		return nil, NewToolError(t.name, msg, CodeExecution)
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return text, nil
}

// textFromContent joins the text parts of a tool result. Non-text content is
// skipped.
func textFromContent(contents []mcp.Content) string {
	var parts []string

	for _, content := range contents {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}

	return strings.Join(parts, "\n")
}
