// Package tool implements the tool calling subsystem that lets agents invoke
// structured capabilities with schema validated arguments and consistent
// error handling. Tools are either plain Go functions wrapped by
// FunctionTool or remote MCP server tools exposed through a Session.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentbridge/internal/util"
)

// Error codes carried by ToolError for categorization.
const (
	// CodeValidation marks a schema or argument mismatch.
	CodeValidation = "VALIDATION_ERROR"

	// CodeExecution marks a failure inside the tool itself.
	CodeExecution = "EXECUTION_ERROR"

	// CodeConnection marks a transport failure reaching a remote tool server.
	CodeConnection = "CONNECTION_ERROR"

	// CodeTimeout marks a call that exceeded its deadline.
	CodeTimeout = "TIMEOUT"
)

// Tool defines the interface for extending agent capabilities with external
// functions.
//
// Tools are registered for model function calling, allowing agents to perform
// actions beyond text generation such as API calls, calculations, or queries
// against remote services.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Respect context cancellation on long-running calls
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the model to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and model function calling.
	Parameters() map[string]interface{}

	// Call executes the tool with structured arguments. Arguments are parsed
	// from JSON and validated against the tool's schema before execution.
	// The context bounds the call; implementations backed by remote servers
	// must honor its deadline.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
