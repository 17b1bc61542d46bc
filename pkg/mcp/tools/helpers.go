package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskorchestrator/engine/pkg/models"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// mustMarshal serializes a response value. Responses are plain structs of
// JSON-safe fields, so a failure here is a programming error.
func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return string(data)
}

// requestArguments returns the request's argument map.
func requestArguments(req mcp.CallToolRequest) (map[string]any, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid request arguments")
	}
	return args, nil
}

// extractArrayParam reads an optional array argument. A missing key yields
// the fallback; a present non-array value is an error.
func extractArrayParam(args map[string]any, key string, fallback []any) ([]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'%s' must be an array", key)
	}
	return arr, nil
}

// extractStringSlice reads an optional array-of-strings argument.
func extractStringSlice(args map[string]any, key string) ([]string, error) {
	raw, err := extractArrayParam(args, key, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("'%s' entry at index %d must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseContainerType validates the container_type parameter.
func parseContainerType(raw string) (models.ContainerType, error) {
	containerType := models.ContainerType(strings.ToLower(trimString(raw)))
	if !models.IsValidContainerType(containerType) {
		return "", fmt.Errorf("'container_type' must be one of project, feature, task; got %q", raw)
	}
	return containerType, nil
}

// parseContainerID validates a UUID parameter.
func parseContainerID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("'container_id' must be a UUID: %v", err)
	}
	return id, nil
}
