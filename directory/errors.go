package directory

import (
	"errors"
	"fmt"
)

// ErrRegistryNotConfigured is returned when a lookup requires a registry URL
// that was never provided.
var ErrRegistryNotConfigured = errors.New("MCP registry URL not configured")

// NotFoundError indicates that a registry answered but had no entry for the
// requested agent or tool server.
type NotFoundError struct {
	Kind     string // "agent" or "server"
	Provider Provider
	Name     string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "agent" {
		return fmt.Sprintf("agent '%s' not found", e.Name)
	}
	return fmt.Sprintf("MCP server '%s' not found in %s registry", e.Name, e.Provider)
}

// ResolutionError indicates that a tool server was located but could not be
// turned into a usable endpoint, for example a missing deployment URL or
// missing credentials.
type ResolutionError struct {
	Provider Provider
	Name     string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return e.Reason
}
