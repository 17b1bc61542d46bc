package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// activeOrDefault falls back to the bundled flows in V1 mode so
// flow-derived recommendations stay available without enforcement.
func activeOrDefault(flows WorkflowSource) *config.WorkflowConfig {
	if cfg := flows.Active(); cfg != nil {
		return cfg
	}
	return config.DefaultWorkflowConfig()
}

// openBlockers returns the upstream tasks of incoming BLOCKS edges that
// are still open (neither completed nor cancelled). Upstream tasks that no
// longer exist do not block.
func openBlockers(ctx context.Context, deps repositories.DependencyRepository, tasks repositories.TaskRepository, taskID uuid.UUID) ([]*models.Task, error) {
	edges, err := deps.FindByToTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task dependencies: %w", err)
	}
	var blockers []*models.Task
	for _, edge := range edges {
		if edge.Type != models.DependencyBlocks {
			continue
		}
		upstream, err := tasks.Get(ctx, edge.FromTaskID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load blocking task: %w", err)
		}
		status := models.NormalizeStatus(upstream.Status)
		if status != models.StatusCompleted && status != models.StatusCancelled {
			blockers = append(blockers, upstream)
		}
	}
	return blockers, nil
}
