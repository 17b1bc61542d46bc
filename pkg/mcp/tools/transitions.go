// Package tools provides the MCP tool surface of the workflow engine.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/services"
)

// MaxBatchTransitionSize caps a single request_transition call.
const MaxBatchTransitionSize = 50

// WorkflowToolDeps contains dependencies for the workflow tools.
type WorkflowToolDeps struct {
	Orchestrator services.TransitionOrchestrator
	Progression  services.StatusProgressionService
	Validator    services.StatusValidator
	Entities     services.EntityReader
	Logger       *zap.Logger
}

// RegisterWorkflowTools registers the workflow MCP tools.
func RegisterWorkflowTools(s *server.MCPServer, deps *WorkflowToolDeps) {
	registerRequestTransitionTool(s, deps)
	registerSuggestNextStatusTool(s, deps)
	registerValidateStatusTool(s, deps)
}

// requestTransitionResponse is the envelope returned by request_transition.
type requestTransitionResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    *services.BatchResult `json:"data"`
}

// registerRequestTransitionTool adds the batch transition entry point.
func registerRequestTransitionTool(s *server.MCPServer, deps *WorkflowToolDeps) {
	tool := mcp.NewTool(
		"request_transition",
		mcp.WithDescription(
			"Request status transitions for projects, features, or tasks. "+
				"Accepts a batch of transitions processed in order; each item is independent and "+
				"a failure never rolls back earlier items. "+
				"Triggers: start (advance along the active flow), complete, cancel, block, hold, "+
				"or an explicit status name. "+
				"Completing a task requires a summary of 300-500 characters (pass it here or set it beforehand). "+
				"Responses include applied cascades, newly unblocked tasks, and flow context.",
		),
		mcp.WithArray(
			"transitions",
			mcp.Required(),
			mcp.Description("Array of transitions, each with container_id, container_type, trigger, and optional summary"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"container_id":   map[string]any{"type": "string", "description": "UUID of the project, feature, or task"},
					"container_type": map[string]any{"type": "string", "enum": []string{"project", "feature", "task"}, "description": "Hierarchy level of the container"},
					"trigger":        map[string]any{"type": "string", "description": "start, complete, cancel, block, hold, or an explicit status"},
					"summary":        map[string]any{"type": "string", "description": "Completion summary, recorded on the entity before validation"},
				},
				"required": []string{"container_id", "container_type", "trigger"},
			}),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requests, err := parseTransitionRequests(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(requests) == 0 {
			return NewErrorResult("invalid_parameters", "'transitions' array cannot be empty"), nil
		}
		if len(requests) > MaxBatchTransitionSize {
			return NewErrorResultWithDetails(
				"invalid_parameters",
				fmt.Sprintf("too many transitions: maximum %d allowed per call, got %d", MaxBatchTransitionSize, len(requests)),
				map[string]any{
					"max_allowed": MaxBatchTransitionSize,
					"received":    len(requests),
				},
			), nil
		}

		batch, err := deps.Orchestrator.RequestTransition(ctx, requests)
		if err != nil {
			return nil, fmt.Errorf("failed to process transitions: %w", err)
		}

		resp := requestTransitionResponse{
			Success: batch.Summary.Failed == 0,
			Message: fmt.Sprintf("processed %d transition(s): %d succeeded, %d failed",
				batch.Summary.Total, batch.Summary.Succeeded, batch.Summary.Failed),
			Data: batch,
		}
		return mcp.NewToolResultText(mustMarshal(resp)), nil
	})
}

// parseTransitionRequests decodes and validates the transitions array.
func parseTransitionRequests(req mcp.CallToolRequest) ([]services.TransitionRequest, error) {
	args, err := requestArguments(req)
	if err != nil {
		return nil, err
	}
	raw, err := extractArrayParam(args, "transitions", nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("'transitions' must be an array")
	}

	requests := make([]services.TransitionRequest, 0, len(raw))
	for i, item := range raw {
		itemMap, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("transition at index %d must be an object", i)
		}

		idRaw, ok := itemMap["container_id"].(string)
		if !ok || trimString(idRaw) == "" {
			return nil, fmt.Errorf("transition at index %d: 'container_id' is required", i)
		}
		id, err := parseContainerID(idRaw)
		if err != nil {
			return nil, fmt.Errorf("transition at index %d: %v", i, err)
		}

		typeRaw, ok := itemMap["container_type"].(string)
		if !ok || trimString(typeRaw) == "" {
			return nil, fmt.Errorf("transition at index %d: 'container_type' is required", i)
		}
		containerType, err := parseContainerType(typeRaw)
		if err != nil {
			return nil, fmt.Errorf("transition at index %d: %v", i, err)
		}

		trigger, ok := itemMap["trigger"].(string)
		if !ok || trimString(trigger) == "" {
			return nil, fmt.Errorf("transition at index %d: 'trigger' is required", i)
		}

		request := services.TransitionRequest{
			ContainerID:   id,
			ContainerType: containerType,
			Trigger:       trimString(trigger),
		}
		if summaryRaw, ok := itemMap["summary"]; ok && summaryRaw != nil {
			summary, ok := summaryRaw.(string)
			if !ok {
				return nil, fmt.Errorf("transition at index %d: 'summary' must be a string", i)
			}
			request.Summary = &summary
		}
		requests = append(requests, request)
	}
	return requests, nil
}
