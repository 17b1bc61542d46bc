package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

// Cascade event names.
const (
	EventAllTasksComplete    = "all_tasks_complete"
	EventFirstTaskStarted    = "first_task_started"
	EventAllFeaturesComplete = "all_features_complete"
)

// CascadeEvent is an upward status suggestion detected after a committed
// transition. Automatic marks whether the engine applied it itself.
type CascadeEvent struct {
	Event           string               `json:"event"`
	TargetType      models.ContainerType `json:"target_type"`
	TargetID        uuid.UUID            `json:"target_id"`
	CurrentStatus   string               `json:"current_status"`
	SuggestedStatus string               `json:"suggested_status"`
	Flow            string               `json:"flow"`
	Reason          string               `json:"reason"`
	Automatic       bool                 `json:"automatic"`
}

// AppliedCascade is the outcome of applying one CascadeEvent. A failure is
// captured in Error and never aborts sibling cascades.
type AppliedCascade struct {
	CascadeEvent
	Applied        bool             `json:"applied"`
	PreviousStatus string           `json:"previous_status,omitempty"`
	NewStatus      string           `json:"new_status,omitempty"`
	Error          string           `json:"error,omitempty"`
	ChildCascades  []AppliedCascade `json:"child_cascades,omitempty"`
	UnblockedTasks []UnblockedTask  `json:"unblocked_tasks,omitempty"`
	Cleanup        *CleanupResult   `json:"cleanup,omitempty"`
}

// UnblockedTask identifies a downstream task whose last open blocker just
// reached a terminal status.
type UnblockedTask struct {
	TaskID uuid.UUID `json:"task_id"`
	Title  string    `json:"title"`
}

// CleanupResult reports completion cleanup on a terminal feature. The
// feature row itself is always retained.
type CleanupResult struct {
	TasksDeleted    int         `json:"tasks_deleted"`
	TasksRetained   int         `json:"tasks_retained"`
	RetainedTaskIDs []uuid.UUID `json:"retained_task_ids,omitempty"`
}

// CascadeService propagates committed transitions upward through the
// hierarchy and computes their side effects.
type CascadeService interface {
	// DetectCascadeEvents inspects the entity's siblings and parent and
	// returns the upward suggestions, without applying anything.
	DetectCascadeEvents(ctx context.Context, containerID uuid.UUID, containerType models.ContainerType) ([]CascadeEvent, error)

	// ApplyCascades detects and applies cascades recursively. Recursion
	// stops at maxDepth; individual failures are recorded per event.
	ApplyCascades(ctx context.Context, containerID uuid.UUID, containerType models.ContainerType, depth, maxDepth int) ([]AppliedCascade, error)

	// FindNewlyUnblockedTasks runs after a task reaches a terminal status
	// and returns the downstream tasks it was the last open blocker of.
	FindNewlyUnblockedTasks(ctx context.Context, taskID uuid.UUID) ([]UnblockedTask, error)

	// RunCompletionCleanup deletes the feature's terminal child tasks with
	// their sections and dependencies, retaining the rest.
	RunCompletionCleanup(ctx context.Context, featureID uuid.UUID) (*CleanupResult, error)
}

type cascadeService struct {
	flows       WorkflowSource
	validator   StatusValidator
	progression StatusProgressionService
	gate        VerificationGate
	projects    repositories.ProjectRepository
	features    repositories.FeatureRepository
	tasks       repositories.TaskRepository
	deps        repositories.DependencyRepository
	logger      *zap.Logger
}

// NewCascadeService creates the cascade service.
func NewCascadeService(
	flows WorkflowSource,
	validator StatusValidator,
	progression StatusProgressionService,
	gate VerificationGate,
	projects repositories.ProjectRepository,
	features repositories.FeatureRepository,
	tasks repositories.TaskRepository,
	deps repositories.DependencyRepository,
	logger *zap.Logger,
) CascadeService {
	return &cascadeService{
		flows:       flows,
		validator:   validator,
		progression: progression,
		gate:        gate,
		projects:    projects,
		features:    features,
		tasks:       tasks,
		deps:        deps,
		logger:      logger,
	}
}

func (c *cascadeService) DetectCascadeEvents(ctx context.Context, containerID uuid.UUID, containerType models.ContainerType) ([]CascadeEvent, error) {
	switch containerType {
	case models.ContainerTask:
		return c.detectTaskEvents(ctx, containerID)
	case models.ContainerFeature:
		return c.detectFeatureEvents(ctx, containerID)
	default:
		// Projects never cascade upward.
		return nil, nil
	}
}

func (c *cascadeService) detectTaskEvents(ctx context.Context, taskID uuid.UUID) ([]CascadeEvent, error) {
	task, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task for cascade detection: %w", err)
	}
	if task.FeatureID == nil {
		return nil, nil
	}
	feature, err := c.features.Get(ctx, *task.FeatureID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load parent feature: %w", err)
	}

	cfg := activeOrDefault(c.flows)
	featureStatus := models.NormalizeStatus(feature.Status)
	path := cfg.ResolveFlowPath(models.ContainerFeature, feature.Tags, featureStatus)
	if path.IsTerminal(featureStatus) {
		return nil, nil
	}

	var events []CascadeEvent

	counts, err := c.tasks.CountsByFeature(ctx, *task.FeatureID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sibling tasks: %w", err)
	}
	if counts.Total > 0 && counts.AllIn(models.StatusCompleted, models.StatusCancelled) {
		if event, ok, err := c.suggestFeatureAdvance(ctx, feature, EventAllTasksComplete,
			"every task in the feature is completed or cancelled"); err != nil {
			return nil, err
		} else if ok {
			events = append(events, event)
		}
	}

	if models.NormalizeStatus(task.Status) == models.StatusInProgress &&
		counts.Count(models.StatusInProgress) == 1 &&
		path.CurrentPosition == 0 {
		if event, ok, err := c.suggestFeatureAdvance(ctx, feature, EventFirstTaskStarted,
			"the first task of the feature entered work"); err != nil {
			return nil, err
		} else if ok {
			events = append(events, event)
		}
	}

	return events, nil
}

func (c *cascadeService) detectFeatureEvents(ctx context.Context, featureID uuid.UUID) ([]CascadeEvent, error) {
	feature, err := c.features.Get(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature for cascade detection: %w", err)
	}
	if feature.ProjectID == nil {
		return nil, nil
	}

	cfg := activeOrDefault(c.flows)
	featureStatus := models.NormalizeStatus(feature.Status)
	featurePath := cfg.ResolveFlowPath(models.ContainerFeature, feature.Tags, featureStatus)
	if !featurePath.IsTerminal(featureStatus) {
		return nil, nil
	}

	counts, err := c.features.CountsByProject(ctx, *feature.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sibling features: %w", err)
	}
	if counts.Total == 0 || counts.Count(models.StatusCompleted) != counts.Total {
		return nil, nil
	}

	project, err := c.projects.Get(ctx, *feature.ProjectID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load parent project: %w", err)
	}
	projectStatus := models.NormalizeStatus(project.Status)
	projectPath := cfg.ResolveFlowPath(models.ContainerProject, project.Tags, projectStatus)
	if projectPath.IsTerminal(projectStatus) {
		return nil, nil
	}

	rec, err := c.progression.GetNextStatus(ctx, projectStatus, models.ContainerProject, project.Tags, &project.ID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != ProgressionReady {
		return nil, nil
	}
	return []CascadeEvent{{
		Event:           EventAllFeaturesComplete,
		TargetType:      models.ContainerProject,
		TargetID:        project.ID,
		CurrentStatus:   projectStatus,
		SuggestedStatus: rec.RecommendedStatus,
		Flow:            rec.ActiveFlow,
		Reason:          "every feature in the project is completed",
		Automatic:       true,
	}}, nil
}

// suggestFeatureAdvance asks the progression service for the feature's next
// status and shapes it into a cascade event when Ready.
func (c *cascadeService) suggestFeatureAdvance(ctx context.Context, feature *models.Feature, event, reason string) (CascadeEvent, bool, error) {
	rec, err := c.progression.GetNextStatus(ctx, feature.Status, models.ContainerFeature, feature.Tags, &feature.ID)
	if err != nil {
		return CascadeEvent{}, false, err
	}
	if rec.Kind != ProgressionReady {
		return CascadeEvent{}, false, nil
	}
	return CascadeEvent{
		Event:           event,
		TargetType:      models.ContainerFeature,
		TargetID:        feature.ID,
		CurrentStatus:   models.NormalizeStatus(feature.Status),
		SuggestedStatus: rec.RecommendedStatus,
		Flow:            rec.ActiveFlow,
		Reason:          reason,
		Automatic:       true,
	}, true, nil
}

func (c *cascadeService) ApplyCascades(ctx context.Context, containerID uuid.UUID, containerType models.ContainerType, depth, maxDepth int) ([]AppliedCascade, error) {
	if depth >= maxDepth {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, err := c.DetectCascadeEvents(ctx, containerID, containerType)
	if err != nil {
		return nil, err
	}

	applied := make([]AppliedCascade, 0, len(events))
	for _, event := range events {
		applied = append(applied, c.applyOne(ctx, event, depth, maxDepth))
	}
	return applied, nil
}

// applyOne validates and commits a single cascade event, then recurses from
// the target. All failures are folded into the returned record.
func (c *cascadeService) applyOne(ctx context.Context, event CascadeEvent, depth, maxDepth int) AppliedCascade {
	result := AppliedCascade{CascadeEvent: event}

	current, tags, requiresVerification, err := c.targetStatus(ctx, event.TargetType, event.TargetID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.PreviousStatus = current
	if current == event.SuggestedStatus {
		// Someone beat us to it; nothing to apply.
		return result
	}

	validation, err := c.validator.ValidateTransition(ctx, current, event.SuggestedStatus, event.TargetType, &event.TargetID, tags)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !validation.OK() {
		result.Error = validation.Reason
		return result
	}

	// A cascade is just another road to completed; the verification gate
	// guards it the same as a direct transition.
	if event.SuggestedStatus == models.StatusCompleted && requiresVerification {
		gateRes, err := c.gate.Check(ctx, event.TargetType, event.TargetID)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if gateRes.Kind != GateOK {
			reason := gateRes.Detail
			if gateRes.Kind == GateFailed {
				reason = "verification criteria not satisfied"
			}
			result.Error = fmt.Errorf("%w: %s", apperrors.ErrGateBlocked, reason).Error()
			return result
		}
	}

	if err := c.updateTargetStatus(ctx, event.TargetType, event.TargetID, event.SuggestedStatus); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Applied = true
	result.NewStatus = event.SuggestedStatus

	c.logger.Info("cascade applied",
		zap.String("event", event.Event),
		zap.String("target_type", string(event.TargetType)),
		zap.String("target_id", event.TargetID.String()),
		zap.String("from", current),
		zap.String("to", event.SuggestedStatus),
		zap.Int("depth", depth))

	cfg := activeOrDefault(c.flows)
	if event.TargetType == models.ContainerFeature && cfg.CompletionCleanup.Enabled {
		path := cfg.ResolveFlowPath(models.ContainerFeature, tags, event.SuggestedStatus)
		if path.IsTerminal(event.SuggestedStatus) {
			cleanup, err := c.RunCompletionCleanup(ctx, event.TargetID)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Cleanup = cleanup
			}
		}
	}

	children, err := c.ApplyCascades(ctx, event.TargetID, event.TargetType, depth+1, maxDepth)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ChildCascades = children
	return result
}

// targetStatus loads the cascade target's current status, tags and
// verification requirement.
func (c *cascadeService) targetStatus(ctx context.Context, containerType models.ContainerType, id uuid.UUID) (string, []string, bool, error) {
	switch containerType {
	case models.ContainerProject:
		project, err := c.projects.Get(ctx, id)
		if err != nil {
			return "", nil, false, fmt.Errorf("failed to load cascade target project: %w", err)
		}
		return models.NormalizeStatus(project.Status), project.Tags, false, nil
	case models.ContainerFeature:
		feature, err := c.features.Get(ctx, id)
		if err != nil {
			return "", nil, false, fmt.Errorf("failed to load cascade target feature: %w", err)
		}
		return models.NormalizeStatus(feature.Status), feature.Tags, feature.RequiresVerification, nil
	case models.ContainerTask:
		task, err := c.tasks.Get(ctx, id)
		if err != nil {
			return "", nil, false, fmt.Errorf("failed to load cascade target task: %w", err)
		}
		return models.NormalizeStatus(task.Status), task.Tags, task.RequiresVerification, nil
	default:
		return "", nil, false, fmt.Errorf("unknown container type %q", containerType)
	}
}

// updateTargetStatus commits the new status through the store's optimistic
// locking path.
func (c *cascadeService) updateTargetStatus(ctx context.Context, containerType models.ContainerType, id uuid.UUID, status string) error {
	switch containerType {
	case models.ContainerProject:
		project, err := c.projects.Get(ctx, id)
		if err != nil {
			return err
		}
		project.Status = status
		return c.projects.Update(ctx, project)
	case models.ContainerFeature:
		feature, err := c.features.Get(ctx, id)
		if err != nil {
			return err
		}
		feature.Status = status
		return c.features.Update(ctx, feature)
	case models.ContainerTask:
		task, err := c.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		task.Status = status
		return c.tasks.Update(ctx, task)
	default:
		return fmt.Errorf("unknown container type %q", containerType)
	}
}

func (c *cascadeService) FindNewlyUnblockedTasks(ctx context.Context, taskID uuid.UUID) ([]UnblockedTask, error) {
	edges, err := c.deps.FindByFromTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outgoing dependencies: %w", err)
	}

	cfg := activeOrDefault(c.flows)
	var unblocked []UnblockedTask
	for _, edge := range edges {
		if edge.Type != models.DependencyBlocks {
			continue
		}
		downstream, err := c.tasks.Get(ctx, edge.ToTaskID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load downstream task: %w", err)
		}
		status := models.NormalizeStatus(downstream.Status)
		if cfg.ResolveFlowPath(models.ContainerTask, downstream.Tags, status).IsTerminal(status) {
			continue
		}
		open, err := openBlockers(ctx, c.deps, c.tasks, downstream.ID)
		if err != nil {
			return nil, err
		}
		if len(open) == 0 {
			unblocked = append(unblocked, UnblockedTask{TaskID: downstream.ID, Title: downstream.Title})
		}
	}
	return unblocked, nil
}

func (c *cascadeService) RunCompletionCleanup(ctx context.Context, featureID uuid.UUID) (*CleanupResult, error) {
	tasks, err := c.tasks.FindByFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature tasks for cleanup: %w", err)
	}

	result := &CleanupResult{}
	for _, task := range tasks {
		switch models.NormalizeStatus(task.Status) {
		case models.StatusCompleted, models.StatusCancelled, models.StatusDeferred:
			if err := c.deps.DeleteByTaskID(ctx, task.ID); err != nil {
				return result, fmt.Errorf("failed to delete task dependencies during cleanup: %w", err)
			}
			if err := c.tasks.Delete(ctx, task.ID); err != nil {
				return result, fmt.Errorf("failed to delete task during cleanup: %w", err)
			}
			result.TasksDeleted++
		default:
			result.TasksRetained++
			result.RetainedTaskIDs = append(result.RetainedTaskIDs, task.ID)
		}
	}

	c.logger.Info("completion cleanup finished",
		zap.String("feature_id", featureID.String()),
		zap.Int("deleted", result.TasksDeleted),
		zap.Int("retained", result.TasksRetained))
	return result, nil
}
