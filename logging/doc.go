// Package logging provides a minimal logging interface and adapters for AgentBridge.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the dispatch engine and its collaborators use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - BridgeLogger with contextual agent/conversation helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	bridge := agentbridge.New("agentX", logic, func(o *agentbridge.Options) {
//		o.Logger = logger
//	})
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
