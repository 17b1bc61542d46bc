package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

// ProgressionKind discriminates the progression recommendation variants.
type ProgressionKind string

const (
	ProgressionReady    ProgressionKind = "ready"
	ProgressionBlocked  ProgressionKind = "blocked"
	ProgressionTerminal ProgressionKind = "terminal"
)

// ProgressionResult is the sum type returned by GetNextStatus:
// Ready(recommended), Blocked(reason, blockers), or Terminal(status).
type ProgressionResult struct {
	Kind              ProgressionKind `json:"kind"`
	RecommendedStatus string          `json:"recommended_status,omitempty"`
	ActiveFlow        string          `json:"active_flow,omitempty"`
	FlowSequence      []string        `json:"flow_sequence,omitempty"`
	Position          int             `json:"position"`
	MatchedTags       []string        `json:"matched_tags,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	BlockerIDs        []uuid.UUID     `json:"blocker_ids,omitempty"`
	Status            string          `json:"status,omitempty"`
}

// StatusProgressionService recommends the next status for an entity under
// its active flow.
type StatusProgressionService interface {
	// GetNextStatus resolves the flow for (current, tags) and recommends
	// the next status. With a non-nil entityID, the candidate's
	// prerequisites are evaluated against the store and failures surface
	// as Blocked.
	GetNextStatus(ctx context.Context, currentStatus string, containerType models.ContainerType, tags []string, entityID *uuid.UUID) (ProgressionResult, error)

	// GetFlowPath exposes the resolved flow for response enrichment.
	GetFlowPath(containerType models.ContainerType, tags []string, currentStatus string) config.FlowPath

	// GetRoleForStatus classifies a status, honoring the flow's terminal
	// set over the static mapping.
	GetRoleForStatus(status string, containerType models.ContainerType, tags []string) (models.Role, bool)
}

type statusProgression struct {
	flows     WorkflowSource
	validator StatusValidator
	tasks     repositories.TaskRepository
	deps      repositories.DependencyRepository
	logger    *zap.Logger
}

// NewStatusProgressionService creates the progression service.
func NewStatusProgressionService(
	flows WorkflowSource,
	validator StatusValidator,
	tasks repositories.TaskRepository,
	deps repositories.DependencyRepository,
	logger *zap.Logger,
) StatusProgressionService {
	return &statusProgression{flows: flows, validator: validator, tasks: tasks, deps: deps, logger: logger}
}

func (p *statusProgression) GetNextStatus(ctx context.Context, currentStatus string, containerType models.ContainerType, tags []string, entityID *uuid.UUID) (ProgressionResult, error) {
	cfg := activeOrDefault(p.flows)
	current := models.NormalizeStatus(currentStatus)
	path := cfg.ResolveFlowPath(containerType, tags, current)

	if path.IsTerminal(current) {
		return ProgressionResult{
			Kind:         ProgressionTerminal,
			Status:       current,
			ActiveFlow:   path.ActiveFlow,
			FlowSequence: path.FlowSequence,
			Position:     path.CurrentPosition,
		}, nil
	}

	next, ok := path.Next()
	if !ok {
		reason := fmt.Sprintf("status %q is not part of flow %q", current, path.ActiveFlow)
		if path.CurrentPosition >= 0 {
			reason = fmt.Sprintf("already at the final status of flow %q", path.ActiveFlow)
		}
		return ProgressionResult{
			Kind:         ProgressionBlocked,
			Reason:       reason,
			ActiveFlow:   path.ActiveFlow,
			FlowSequence: path.FlowSequence,
			Position:     path.CurrentPosition,
		}, nil
	}

	if entityID != nil {
		res, err := p.validator.ValidateTransition(ctx, current, next, containerType, entityID, tags)
		if err != nil {
			return ProgressionResult{}, err
		}
		if !res.OK() {
			blocked := ProgressionResult{
				Kind:         ProgressionBlocked,
				Reason:       res.Reason,
				ActiveFlow:   path.ActiveFlow,
				FlowSequence: path.FlowSequence,
				Position:     path.CurrentPosition,
			}
			if containerType == models.ContainerTask && next == models.StatusInProgress {
				blockers, err := openBlockers(ctx, p.deps, p.tasks, *entityID)
				if err != nil {
					return ProgressionResult{}, err
				}
				for _, b := range blockers {
					blocked.BlockerIDs = append(blocked.BlockerIDs, b.ID)
				}
			}
			return blocked, nil
		}
	}

	return ProgressionResult{
		Kind:              ProgressionReady,
		RecommendedStatus: next,
		ActiveFlow:        path.ActiveFlow,
		FlowSequence:      path.FlowSequence,
		Position:          path.CurrentPosition,
		MatchedTags:       path.MatchedTags,
		Reason:            fmt.Sprintf("next status in flow %q", path.ActiveFlow),
	}, nil
}

func (p *statusProgression) GetFlowPath(containerType models.ContainerType, tags []string, currentStatus string) config.FlowPath {
	return activeOrDefault(p.flows).ResolveFlowPath(containerType, tags, currentStatus)
}

func (p *statusProgression) GetRoleForStatus(status string, containerType models.ContainerType, tags []string) (models.Role, bool) {
	normalized := models.NormalizeStatus(status)
	path := activeOrDefault(p.flows).ResolveFlowPath(containerType, tags, normalized)
	if path.IsTerminal(normalized) {
		return models.RoleTerminal, true
	}
	return models.RoleForStatus(normalized)
}
