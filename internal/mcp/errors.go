package mcp

import "fmt"

// ConnectionError is a transport-level failure reaching a tool server.
// It is always contained by the registry: the server is skipped and the
// turn proceeds with reduced tool coverage.
type ConnectionError struct {
	Server   string
	Endpoint string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tool server %s (%s): %v", e.Server, e.Endpoint, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ProtocolError is a malformed tool list or tool result payload.
type ProtocolError struct {
	Server  string
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool server %s: %s: %v", e.Server, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool server %s: %s", e.Server, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}
