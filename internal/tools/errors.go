package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is wrapped when a provider is asked for a tool it does not advertise.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrNotConnected is wrapped when a provider is used before Connect or after Close.
	ErrNotConnected = errors.New("provider not connected")

	// ErrInvalidArguments is wrapped when arguments fail input-schema validation.
	ErrInvalidArguments = errors.New("arguments do not match input schema")
)

// ConnectionError reports a provider that could not be started or that failed
// its handshake or tool listing.
type ConnectionError struct {
	Provider string
	Op       string // start, initialize, list_tools
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting tool provider %s (%s): %v", e.Provider, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// InvocationError reports a failed tool call.
type InvocationError struct {
	Provider string
	Tool     string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("calling tool %s on %s: %v", e.Tool, e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
