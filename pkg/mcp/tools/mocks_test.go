package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/services"
)

// mockOrchestrator implements services.TransitionOrchestrator for testing.
type mockOrchestrator struct {
	batch    *services.BatchResult
	err      error
	requests []services.TransitionRequest
}

func (m *mockOrchestrator) RequestTransition(ctx context.Context, requests []services.TransitionRequest) (*services.BatchResult, error) {
	m.requests = requests
	if m.err != nil {
		return nil, m.err
	}
	return m.batch, nil
}

// mockProgression implements services.StatusProgressionService for testing.
type mockProgression struct {
	next     services.ProgressionResult
	nextErr  error
	flow     config.FlowPath
	role     models.Role
	roleOK   bool
	entityID *uuid.UUID
}

func (m *mockProgression) GetNextStatus(ctx context.Context, currentStatus string, containerType models.ContainerType, tags []string, entityID *uuid.UUID) (services.ProgressionResult, error) {
	m.entityID = entityID
	if m.nextErr != nil {
		return services.ProgressionResult{}, m.nextErr
	}
	return m.next, nil
}

func (m *mockProgression) GetFlowPath(containerType models.ContainerType, tags []string, currentStatus string) config.FlowPath {
	return m.flow
}

func (m *mockProgression) GetRoleForStatus(status string, containerType models.ContainerType, tags []string) (models.Role, bool) {
	return m.role, m.roleOK
}

// mockValidator implements services.StatusValidator for testing.
type mockValidator struct {
	status        services.ValidationResult
	transition    services.ValidationResult
	transitionErr error
	gotStatus     string
	gotTags       []string
}

func (m *mockValidator) ValidateStatus(status string, containerType models.ContainerType, tags []string) services.ValidationResult {
	m.gotStatus = status
	m.gotTags = tags
	return m.status
}

func (m *mockValidator) ValidateTransition(ctx context.Context, from, to string, containerType models.ContainerType, containerID *uuid.UUID, tags []string) (services.ValidationResult, error) {
	if m.transitionErr != nil {
		return services.ValidationResult{}, m.transitionErr
	}
	return m.transition, nil
}

// mockEntityReader implements services.EntityReader for testing.
type mockEntityReader struct {
	states map[uuid.UUID]services.EntityState
	err    error
}

func (m *mockEntityReader) GetState(ctx context.Context, containerType models.ContainerType, id uuid.UUID) (services.EntityState, error) {
	if m.err != nil {
		return services.EntityState{}, m.err
	}
	state, ok := m.states[id]
	if !ok {
		return services.EntityState{}, apperrors.ErrNotFound
	}
	return state, nil
}

// newWorkflowServer registers the workflow tools against a fresh MCP
// server so tests can drive them over JSON-RPC.
func newWorkflowServer(deps *WorkflowToolDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterWorkflowTools(s, deps)
	return s
}

// callTool invokes a registered tool via tools/call and returns the
// isError flag and the text payload of the first content block.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (bool, string) {
	t.Helper()

	request := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	}
	requestJSON, err := json.Marshal(request)
	require.NoError(t, err)

	raw := s.HandleMessage(context.Background(), requestJSON)
	rawJSON, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rawJSON, &response))
	require.Nil(t, response.Error, "tool call failed at the protocol level")
	require.NotEmpty(t, response.Result.Content)
	require.Equal(t, "text", response.Result.Content[0].Type)
	return response.Result.IsError, response.Result.Content[0].Text
}

// callToolExpectingProtocolError invokes a tool whose handler is expected
// to return a Go error and returns the JSON-RPC error message.
func callToolExpectingProtocolError(t *testing.T, s *server.MCPServer, name string, args map[string]any) string {
	t.Helper()

	request := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	}
	requestJSON, err := json.Marshal(request)
	require.NoError(t, err)

	raw := s.HandleMessage(context.Background(), requestJSON)
	rawJSON, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rawJSON, &response))
	require.NotNil(t, response.Error, "expected a protocol-level error")
	return response.Error.Message
}

// decodeError parses a structured ErrorResponse payload.
func decodeError(t *testing.T, text string) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	return resp
}

// listToolNames returns the registered tool names via tools/list.
func listToolNames(t *testing.T, s *server.MCPServer) map[string]bool {
	t.Helper()

	raw := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	rawJSON, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rawJSON, &response))

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	return names
}
