// Package runner implements the tool query orchestration loop.
//
// A Runner connects a language model with a remote tool server for the
// duration of one query: it opens an MCP session, advertises the server's
// tools to the model, executes the calls the model requests and feeds the
// formatted results back until the model produces a final text answer.
//
// Two budgets bound every query. A round limiter caps the number of model
// calls, and a wall-clock deadline covers the whole exchange including tool
// execution. A shared Pool additionally bounds how many queries run at once
// so bursts queue instead of fanning out unbounded upstream connections.
//
// See runner.go for the operational implementation details.
package runner
