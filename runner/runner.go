package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/agentbridge/directory"
	"github.com/hupe1980/agentbridge/format"
	"github.com/hupe1980/agentbridge/internal/util"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/model"
	"github.com/hupe1980/agentbridge/tool"
)

const (
	// DefaultMaxRounds caps model calls per query.
	DefaultMaxRounds = 8

	// DefaultBudget is the wall-clock limit for a single query, covering
	// session setup, every model round and every tool call.
	DefaultBudget = 60 * time.Second

	// DefaultMaxConcurrentQueries bounds simultaneous tool queries.
	DefaultMaxConcurrentQueries = 4
)

// Stages attached to QueryError for categorizing failures.
const (
	StageConnect = "connect"
	StageModel   = "model"
	StageTool    = "tool"
	StageBudget  = "budget"
)

const defaultInstructions = `You are a helpful assistant with access to the '{{.server}}' tool server.
{{- if .description}}
Server description: {{.description}}
{{- end}}
{{- if .tools}}
Available tools: {{.tools | join ", "}}.
{{- end}}
Use the tools when they help answer the query and give a concise final answer.`

// QueryError describes a failed tool query. Its message is written for end
// users, since dispatch replies surface it verbatim.
type QueryError struct {
	// Server is the tool server the query targeted.
	Server string

	// Stage localizes the failure: connect, model, tool or budget.
	Stage string

	// Message is the user-facing failure text.
	Message string
}

func (e *QueryError) Error() string { return e.Message }

// toolSource is the slice of tool.Session the run loop depends on.
type toolSource interface {
	Tools() []tool.Tool
	Tool(name string) (tool.Tool, bool)
}

var _ toolSource = (*tool.Session)(nil)

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxRounds limits model calls per query. 0 means unlimited.
	MaxRounds int

	// Budget is the wall-clock limit per query.
	Budget time.Duration

	// MaxConcurrentQueries bounds queries running at once. <= 0 disables
	// the bound.
	MaxConcurrentQueries int

	// Instructions is the system prompt template. It is rendered with
	// "server", "description" and "tools" values.
	Instructions string

	// ClientName identifies this client to tool servers.
	ClientName string

	// ClientVersion is reported alongside ClientName.
	ClientVersion string

	// Logger receives query lifecycle events.
	Logger logging.Logger
}

// Runner drives the model / tool round trip for a single query: it opens a
// session to the resolved server, advertises the server's tools to the
// model, executes requested calls and feeds formatted results back until the
// model produces a final answer or a budget runs out.
//
// Public methods are safe for concurrent use; a shared Pool provides
// backpressure across queries.
type Runner struct {
	model         model.Model
	maxRounds     int
	budget        time.Duration
	pool          *Pool
	instructions  string
	clientName    string
	clientVersion string
	logger        logging.Logger
}

// New constructs a Runner with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxRounds:            DefaultMaxRounds,
		Budget:               DefaultBudget,
		MaxConcurrentQueries: DefaultMaxConcurrentQueries,
		Instructions:         defaultInstructions,
		ClientName:           "agentbridge",
		ClientVersion:        "0.1.0",
		Logger:               logging.NewNoOpLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		model:         m,
		maxRounds:     opts.MaxRounds,
		budget:        opts.Budget,
		pool:          NewPool(opts.MaxConcurrentQueries),
		instructions:  opts.Instructions,
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
		logger:        opts.Logger,
	}
}

// RunQuery answers query using the tools of the resolved server. The
// returned text is already formatted for display. Failures come back as
// *QueryError with a user-facing message.
func (r *Runner) RunQuery(ctx context.Context, desc directory.ServerDescriptor, query string) (string, error) {
	if err := r.pool.Acquire(ctx); err != nil {
		return "", &QueryError{Server: desc.Name, Stage: StageBudget, Message: "Tool execution failed: query budget exceeded"}
	}
	defer r.pool.Release()

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	start := time.Now()

	sess, err := tool.OpenSession(ctx, desc, func(o *tool.SessionOptions) {
		o.ClientName = r.clientName
		o.ClientVersion = r.clientVersion
		o.Logger = r.logger
	})
	if err != nil {
		r.logger.Error("runner.session.error", "server", desc.Name, "error", err.Error())

		return "", &QueryError{Server: desc.Name, Stage: StageConnect, Message: "Failed to connect to MCP server. Check server URL and authentication."}
	}

	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.logger.Warn("runner.session.close.error", "server", desc.Name, "error", cerr.Error())
		}
	}()

	text, err := r.run(ctx, desc, sess, query)

	r.logger.Info("runner.query.complete",
		"server", desc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return text, err
}

// run executes the model / tool loop against an established tool source.
func (r *Runner) run(ctx context.Context, desc directory.ServerDescriptor, src toolSource, query string) (string, error) {
	instructions, err := r.renderInstructions(desc, src)
	if err != nil {
		return "", &QueryError{Server: desc.Name, Stage: StageModel, Message: fmt.Sprintf("Error processing query: %v", err)}
	}

	defs := toolDefinitions(src.Tools())
	limiter := NewModelLimiter(r.maxRounds)

	// Providers read the system prompt from the contents, so instructions are
	// materialized as the leading system content.
	contents := []model.Content{
		model.NewSystemText(instructions),
		model.NewUserText(query),
	}

	for {
		if ctx.Err() != nil {
			return "", &QueryError{Server: desc.Name, Stage: StageBudget, Message: "Tool execution failed: query budget exceeded"}
		}

		if err := limiter.Increment(); err != nil {
			return "", &QueryError{Server: desc.Name, Stage: StageBudget, Message: fmt.Sprintf("Tool execution failed: %v", err)}
		}

		r.logger.Debug("runner.model.call", "server", desc.Name, "round", limiter.Count())

		respCh, errCh := r.model.Generate(ctx, model.Request{
			Instructions: instructions,
			Contents:     contents,
			Tools:        defs,
		})

		final, err := collectResponse(ctx, respCh, errCh)
		if err != nil {
			if ctx.Err() != nil {
				return "", &QueryError{Server: desc.Name, Stage: StageBudget, Message: "Tool execution failed: query budget exceeded"}
			}

			return "", &QueryError{Server: desc.Name, Stage: StageModel, Message: fmt.Sprintf("Error processing query: %v", err)}
		}

		if final == nil {
			return "No response generated", nil
		}

		fnCalls := final.FunctionCalls()
		if len(fnCalls) == 0 {
			text := strings.TrimSpace(final.Text())
			if text == "" {
				return "No response generated", nil
			}

			return format.Format(text), nil
		}

		contents = append(contents, *final)
		contents = append(contents, r.executeCalls(ctx, desc, src, fnCalls))
	}
}

func (r *Runner) renderInstructions(desc directory.ServerDescriptor, src toolSource) (string, error) {
	names := make([]any, 0, len(src.Tools()))
	for _, t := range src.Tools() {
		names = append(names, t.Name())
	}

	return util.RenderTemplate(r.instructions, map[string]any{
		"server":      desc.Name,
		"description": desc.Description,
		"tools":       names,
	})
}

// executeCalls runs the model's requested tool calls in order and bundles
// the results into a single tool-role content. Results are formatted before
// feeding back so the model sees the same rendering the user would.
func (r *Runner) executeCalls(ctx context.Context, desc directory.ServerDescriptor, src toolSource, fnCalls []model.FunctionCall) model.Content {
	parts := make([]model.Part, 0, len(fnCalls))

	for _, fc := range fnCalls {
		start := time.Now()

		result, err := r.executeCall(ctx, src, fc)

		r.logger.Info("runner.tool.executed",
			"server", desc.Name,
			"tool", fc.Name,
			"fc_id", fc.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)

		resp := model.FunctionResponse{ID: fc.ID, Name: fc.Name}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Response = format.Format(result)
		}

		parts = append(parts, model.FunctionResponsePart{FunctionResponse: resp})
	}

	return model.Content{Role: "tool", Parts: parts}
}

// executeCall resolves and invokes a single tool. Panics inside tool
// implementations are recovered and converted to errors so one bad tool
// cannot take down the query.
func (r *Runner) executeCall(ctx context.Context, src toolSource, fc model.FunctionCall) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("runner.tool.panic", "tool", fc.Name, "recover", rec, "stack", string(debug.Stack()))

			result = nil
			err = fmt.Errorf("tool %s panicked", fc.Name)
		}
	}()

	impl, ok := src.Tool(fc.Name)
	if !ok {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if uerr := json.Unmarshal([]byte(fc.Arguments), &args); uerr != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", uerr)
		}
	}

	return impl.Call(ctx, args)
}

// collectResponse drains the Generate channels and returns the last complete
// content. Closed channels are disabled via nil so a close on one side never
// drops content still in flight on the other.
func collectResponse(ctx context.Context, respCh <-chan model.Response, errCh <-chan error) (*model.Content, error) {
	var final *model.Content

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if resp.Partial {
				continue
			}

			content := resp.Content
			final = &content
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return final, nil
}

func toolDefinitions(tools []tool.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return defs
}
