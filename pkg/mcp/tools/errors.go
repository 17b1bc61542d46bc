package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskorchestrator/engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results. Actionable
// errors are returned this way, as a successful tool result carrying error
// details, so the calling agent can see and fix them instead of the MCP
// client swallowing them.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error. Use
// this for recoverable errors the agent can fix (invalid parameters,
// missing entities, rejected transitions). System failures (database down,
// internal errors) should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional
// context, for example the suggestion list of a rejected transition.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewAppErrorResult shapes a service-layer error into a structured result
// using the engine's error code taxonomy.
func NewAppErrorResult(err error) *mcp.CallToolResult {
	return NewErrorResult(string(apperrors.CodeFor(err)), err.Error())
}
