package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrCycleLimitExceeded is returned when the model keeps requesting tools
	// past the configured number of cycles.
	ErrCycleLimitExceeded = errors.New("cycle limit exceeded")

	// ErrNotInitialized is returned by Invoke before a successful Init.
	ErrNotInitialized = errors.New("agent not initialized, call Init first")
)

// ArgumentParseError reports a tool call whose arguments are not a JSON object.
type ArgumentParseError struct {
	CallID    string
	Tool      string
	Arguments string
	Err       error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("parsing arguments for tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ArgumentParseError) Unwrap() error {
	return e.Err
}
