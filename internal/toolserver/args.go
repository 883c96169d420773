// Package toolserver holds the helpers shared by the bundled MCP tool servers.
package toolserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes a tool call's arguments into out, a pointer to a struct
// with json tags. Numbers and booleans sent as strings are accepted.
func DecodeArgs(request mcp.CallToolRequest, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(request.GetArguments()); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Errorf returns an error result the model can read and react to.
func Errorf(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("error: "+format, args...))
}
