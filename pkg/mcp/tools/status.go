package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/services"
)

// suggestNextStatusResponse is returned by suggest_next_status.
type suggestNextStatusResponse struct {
	ContainerID    string                     `json:"container_id"`
	ContainerType  models.ContainerType       `json:"container_type"`
	Title          string                     `json:"title"`
	CurrentStatus  string                     `json:"current_status"`
	Recommendation services.ProgressionResult `json:"recommendation"`
}

// registerSuggestNextStatusTool adds the read-only progression tool.
func registerSuggestNextStatusTool(s *server.MCPServer, deps *WorkflowToolDeps) {
	tool := mcp.NewTool(
		"suggest_next_status",
		mcp.WithDescription(
			"Recommend the next status for a project, feature, or task along its active flow. "+
				"Returns ready (with the recommended status), blocked (with the reason and any "+
				"blocking task ids), or terminal. Nothing is modified; use request_transition to apply.",
		),
		mcp.WithString(
			"container_id",
			mcp.Required(),
			mcp.Description("UUID of the project, feature, or task"),
		),
		mcp.WithString(
			"container_type",
			mcp.Required(),
			mcp.Description("Hierarchy level of the container"),
			mcp.Enum("project", "feature", "task"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idRaw, err := req.RequireString("container_id")
		if err != nil {
			return nil, err
		}
		typeRaw, err := req.RequireString("container_type")
		if err != nil {
			return nil, err
		}
		id, err := parseContainerID(idRaw)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		containerType, err := parseContainerType(typeRaw)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		state, err := deps.Entities.GetState(ctx, containerType, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return NewAppErrorResult(fmt.Errorf("%s %s: %w", containerType, id, err)), nil
			}
			return nil, fmt.Errorf("failed to load %s: %w", containerType, err)
		}

		rec, err := deps.Progression.GetNextStatus(ctx, state.Status, containerType, state.Tags, &id)
		if err != nil {
			return nil, fmt.Errorf("failed to compute next status: %w", err)
		}

		resp := suggestNextStatusResponse{
			ContainerID:    id.String(),
			ContainerType:  containerType,
			Title:          state.Title,
			CurrentStatus:  state.Status,
			Recommendation: rec,
		}
		return mcp.NewToolResultText(mustMarshal(resp)), nil
	})
}

// validateStatusResponse is returned by validate_status.
type validateStatusResponse struct {
	Status        string                    `json:"status"`
	ContainerType models.ContainerType      `json:"container_type"`
	Result        services.ValidationResult `json:"result"`
	FlowPath      config.FlowPath           `json:"flow_path"`
}

// registerValidateStatusTool adds the stateless status check tool.
func registerValidateStatusTool(s *server.MCPServer, deps *WorkflowToolDeps) {
	tool := mcp.NewTool(
		"validate_status",
		mcp.WithDescription(
			"Check whether a status value is valid for a container type under the active workflow "+
				"configuration, and show the flow it resolves into. "+
				"Statuses are normalized (lowercased, underscores folded to hyphens) before checking. "+
				"Pass tags to resolve tag-mapped flows such as hotfix or release.",
		),
		mcp.WithString(
			"status",
			mcp.Required(),
			mcp.Description("Status value to check"),
		),
		mcp.WithString(
			"container_type",
			mcp.Required(),
			mcp.Description("Hierarchy level the status applies to"),
			mcp.Enum("project", "feature", "task"),
		),
		mcp.WithArray(
			"tags",
			mcp.Description("Container tags used to resolve tag-mapped flows"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statusRaw, err := req.RequireString("status")
		if err != nil {
			return nil, err
		}
		typeRaw, err := req.RequireString("container_type")
		if err != nil {
			return nil, err
		}
		containerType, err := parseContainerType(typeRaw)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		args, err := requestArguments(req)
		if err != nil {
			return nil, err
		}
		tags, err := extractStringSlice(args, "tags")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		normalized := models.NormalizeStatus(statusRaw)
		resp := validateStatusResponse{
			Status:        normalized,
			ContainerType: containerType,
			Result:        deps.Validator.ValidateStatus(statusRaw, containerType, tags),
			FlowPath:      deps.Progression.GetFlowPath(containerType, tags, normalized),
		}
		return mcp.NewToolResultText(mustMarshal(resp)), nil
	})
}
