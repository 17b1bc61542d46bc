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

// Named triggers. Any other trigger string is resolved as an explicit
// target status against the active flow configuration.
const (
	TriggerStart    = "start"
	TriggerComplete = "complete"
	TriggerCancel   = "cancel"
	TriggerBlock    = "block"
	TriggerHold     = "hold"
)

// TransitionRequest is one item of a transition batch.
type TransitionRequest struct {
	ContainerID   uuid.UUID            `json:"container_id"`
	ContainerType models.ContainerType `json:"container_type"`
	Trigger       string               `json:"trigger"`
	Summary       *string              `json:"summary,omitempty"`
}

// TransitionResult is the per-item outcome of a transition request.
type TransitionResult struct {
	ContainerID     uuid.UUID            `json:"container_id"`
	ContainerType   models.ContainerType `json:"container_type"`
	Trigger         string               `json:"trigger"`
	Applied         bool                 `json:"applied"`
	PreviousStatus  string               `json:"previous_status,omitempty"`
	NewStatus       string               `json:"new_status,omitempty"`
	CurrentStatus   string               `json:"current_status,omitempty"`
	Reason          string               `json:"reason,omitempty"`
	Error           string               `json:"error,omitempty"`
	Suggestions     []string             `json:"suggestions,omitempty"`
	Advisory        string               `json:"advisory,omitempty"`
	Gate            string               `json:"gate,omitempty"`
	FailingCriteria []string             `json:"failing_criteria,omitempty"`
	PreviousRole    string               `json:"previous_role,omitempty"`
	NewRole         string               `json:"new_role,omitempty"`
	Summary         string               `json:"summary,omitempty"`
	CascadeEvents   []AppliedCascade     `json:"cascade_events,omitempty"`
	UnblockedTasks  []UnblockedTask      `json:"unblocked_tasks,omitempty"`
	Cleanup         *CleanupResult       `json:"cleanup,omitempty"`
	ActiveFlow      string               `json:"active_flow,omitempty"`
	FlowSequence    []string             `json:"flow_sequence,omitempty"`
	FlowPosition    int                  `json:"flow_position"`
	BlockerIDs      []uuid.UUID          `json:"blocker_ids,omitempty"`
}

// BatchSummary aggregates a processed batch.
type BatchSummary struct {
	Total             int             `json:"total"`
	Succeeded         int             `json:"succeeded"`
	Failed            int             `json:"failed"`
	AllUnblockedTasks []UnblockedTask `json:"all_unblocked_tasks,omitempty"`
	CascadesApplied   int             `json:"cascades_applied"`
}

// BatchResult is the full outcome of RequestTransition.
type BatchResult struct {
	Results []TransitionResult `json:"results"`
	Summary BatchSummary       `json:"summary"`
}

// TransitionOrchestrator is the engine's single write entry point for
// status changes. Batches are processed in order; each item is its own
// atomic unit and a failure never rolls back earlier items.
type TransitionOrchestrator interface {
	RequestTransition(ctx context.Context, requests []TransitionRequest) (*BatchResult, error)
}

type transitionOrchestrator struct {
	flows           WorkflowSource
	validator       StatusValidator
	progression     StatusProgressionService
	gate            VerificationGate
	cascades        CascadeService
	reader          EntityReader
	projects        repositories.ProjectRepository
	features        repositories.FeatureRepository
	tasks           repositories.TaskRepository
	roleTransitions repositories.RoleTransitionRepository
	logger          *zap.Logger
}

// NewTransitionOrchestrator creates the orchestrator.
func NewTransitionOrchestrator(
	flows WorkflowSource,
	validator StatusValidator,
	progression StatusProgressionService,
	gate VerificationGate,
	cascades CascadeService,
	projects repositories.ProjectRepository,
	features repositories.FeatureRepository,
	tasks repositories.TaskRepository,
	roleTransitions repositories.RoleTransitionRepository,
	logger *zap.Logger,
) TransitionOrchestrator {
	return &transitionOrchestrator{
		flows:           flows,
		validator:       validator,
		progression:     progression,
		gate:            gate,
		cascades:        cascades,
		reader:          NewEntityReader(projects, features, tasks),
		projects:        projects,
		features:        features,
		tasks:           tasks,
		roleTransitions: roleTransitions,
		logger:          logger,
	}
}

func (o *transitionOrchestrator) RequestTransition(ctx context.Context, requests []TransitionRequest) (*BatchResult, error) {
	batch := &BatchResult{
		Results: make([]TransitionResult, 0, len(requests)),
		Summary: BatchSummary{Total: len(requests)},
	}
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		result := o.processOne(ctx, req)
		batch.Results = append(batch.Results, result)
		if result.Applied || result.Reason == "no-op" {
			batch.Summary.Succeeded++
		} else {
			batch.Summary.Failed++
		}
		batch.Summary.AllUnblockedTasks = append(batch.Summary.AllUnblockedTasks, result.UnblockedTasks...)
		batch.Summary.CascadesApplied += countApplied(result.CascadeEvents)
	}
	return batch, nil
}

func (o *transitionOrchestrator) processOne(ctx context.Context, req TransitionRequest) TransitionResult {
	result := TransitionResult{
		ContainerID:   req.ContainerID,
		ContainerType: req.ContainerType,
		Trigger:       req.Trigger,
		FlowPosition:  -1,
	}

	state, err := o.reader.GetState(ctx, req.ContainerType, req.ContainerID)
	if err != nil {
		if isNotFound(err) {
			result.Error = fmt.Sprintf("%s %s not found", req.ContainerType, req.ContainerID)
		} else {
			result.Error = err.Error()
		}
		return result
	}
	result.PreviousStatus = state.Status
	o.attachFlow(&result, req.ContainerType, state.Tags, state.Status)

	// A provided summary is recorded before validation so the completion
	// length rule sees it.
	if req.Summary != nil {
		if err := o.applySummary(ctx, req.ContainerType, req.ContainerID, *req.Summary); err != nil {
			result.Error = err.Error()
			return result
		}
		result.Summary = *req.Summary
	}

	target, res := o.resolveTrigger(ctx, req, state)
	if target == "" {
		result.Reason = res.Reason
		result.BlockerIDs = res.BlockerIDs
		if len(res.BlockerIDs) > 0 {
			result.Error = fmt.Errorf("%w: %s", apperrors.ErrDependency, res.Reason).Error()
		}
		return result
	}

	if target == state.Status {
		result.CurrentStatus = state.Status
		result.Reason = "no-op"
		return result
	}

	validation, err := o.validator.ValidateTransition(ctx, state.Status, target, req.ContainerType, &req.ContainerID, state.Tags)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !validation.OK() {
		result.Reason = validation.Reason
		result.Suggestions = validation.Suggestions
		return result
	}
	result.Advisory = validation.Advisory

	// The gate keys on the resolved target, not the trigger spelling: a
	// start trigger whose next flow status is completed, or an explicit
	// completed trigger, must not slip past it.
	if target == models.StatusCompleted && state.RequiresVerification {
		gateRes, err := o.gate.Check(ctx, req.ContainerType, req.ContainerID)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if gateRes.Kind != GateOK {
			result.Gate = "verification"
			result.Reason = gateRes.Detail
			if gateRes.Kind == GateFailed {
				result.Reason = "verification criteria not satisfied"
				result.FailingCriteria = gateRes.FailingCriteria
			}
			result.Error = fmt.Errorf("%w: %s", apperrors.ErrGateBlocked, result.Reason).Error()
			return result
		}
	}

	if err := o.commitStatus(ctx, req.ContainerType, req.ContainerID, target); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Applied = true
	result.NewStatus = target
	o.attachFlow(&result, req.ContainerType, state.Tags, target)

	if role, ok := o.progression.GetRoleForStatus(state.Status, req.ContainerType, state.Tags); ok {
		result.PreviousRole = string(role)
	}
	if role, ok := o.progression.GetRoleForStatus(target, req.ContainerType, state.Tags); ok {
		result.NewRole = string(role)
	}
	o.recordRoleTransition(ctx, req, result)

	cfg := activeOrDefault(o.flows)
	path := cfg.ResolveFlowPath(req.ContainerType, state.Tags, target)

	if req.ContainerType == models.ContainerFeature && path.IsTerminal(target) && cfg.CompletionCleanup.Enabled {
		cleanup, err := o.cascades.RunCompletionCleanup(ctx, req.ContainerID)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Cleanup = cleanup
		}
	}

	if cfg.AutoCascade.Enabled {
		applied, err := o.cascades.ApplyCascades(ctx, req.ContainerID, req.ContainerType, 0, cfg.MaxDepth())
		if err != nil {
			result.Error = err.Error()
		} else {
			result.CascadeEvents = applied
		}
	} else {
		events, err := o.cascades.DetectCascadeEvents(ctx, req.ContainerID, req.ContainerType)
		if err != nil {
			result.Error = err.Error()
		} else {
			for _, event := range events {
				event.Automatic = false
				result.CascadeEvents = append(result.CascadeEvents, AppliedCascade{CascadeEvent: event})
			}
		}
	}

	if req.ContainerType == models.ContainerTask &&
		(target == models.StatusCompleted || target == models.StatusCancelled) {
		unblocked, err := o.cascades.FindNewlyUnblockedTasks(ctx, req.ContainerID)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.UnblockedTasks = unblocked
		}
	}

	o.logger.Info("transition applied",
		zap.String("container_type", string(req.ContainerType)),
		zap.String("container_id", req.ContainerID.String()),
		zap.String("trigger", req.Trigger),
		zap.String("from", state.Status),
		zap.String("to", target))
	return result
}

// resolveTrigger maps the request trigger to a normalized target status. An
// empty target means resolution failed; the reason rides in the result.
func (o *transitionOrchestrator) resolveTrigger(ctx context.Context, req TransitionRequest, state EntityState) (string, ProgressionResult) {
	switch models.NormalizeStatus(req.Trigger) {
	case TriggerStart:
		rec, err := o.progression.GetNextStatus(ctx, state.Status, req.ContainerType, state.Tags, &req.ContainerID)
		if err != nil {
			return "", ProgressionResult{Reason: err.Error()}
		}
		switch rec.Kind {
		case ProgressionReady:
			return rec.RecommendedStatus, rec
		case ProgressionTerminal:
			rec.Reason = fmt.Sprintf("%s is at terminal status %q", req.ContainerType, rec.Status)
			return "", rec
		default:
			return "", rec
		}
	case TriggerComplete:
		return models.StatusCompleted, ProgressionResult{}
	case TriggerCancel:
		return models.StatusCancelled, ProgressionResult{}
	case TriggerBlock:
		return models.StatusBlocked, ProgressionResult{}
	case TriggerHold:
		return models.StatusOnHold, ProgressionResult{}
	default:
		// An unnamed trigger is an explicit target status; the validator
		// rejects it if it is outside the container's domain.
		return models.NormalizeStatus(req.Trigger), ProgressionResult{}
	}
}

func (o *transitionOrchestrator) attachFlow(result *TransitionResult, containerType models.ContainerType, tags []string, status string) {
	path := o.progression.GetFlowPath(containerType, tags, status)
	result.ActiveFlow = path.ActiveFlow
	result.FlowSequence = path.FlowSequence
	result.FlowPosition = path.CurrentPosition
}

// recordRoleTransition writes the audit row for an applied transition.
// Audit failures are logged, never surfaced.
func (o *transitionOrchestrator) recordRoleTransition(ctx context.Context, req TransitionRequest, result TransitionResult) {
	rt := &models.RoleTransition{
		EntityType: req.ContainerType,
		EntityID:   req.ContainerID,
		FromStatus: result.PreviousStatus,
		ToStatus:   result.NewStatus,
		Trigger:    req.Trigger,
	}
	if result.PreviousRole != "" {
		rt.FromRole = &result.PreviousRole
	}
	if result.NewRole != "" {
		rt.ToRole = &result.NewRole
	}
	if err := o.roleTransitions.Record(ctx, rt); err != nil {
		o.logger.Warn("failed to record role transition",
			zap.String("entity_id", req.ContainerID.String()),
			zap.Error(err))
	}
}

func (o *transitionOrchestrator) applySummary(ctx context.Context, containerType models.ContainerType, id uuid.UUID, summary string) error {
	switch containerType {
	case models.ContainerProject:
		project, err := o.projects.Get(ctx, id)
		if err != nil {
			return err
		}
		project.Summary = summary
		return o.projects.Update(ctx, project)
	case models.ContainerFeature:
		feature, err := o.features.Get(ctx, id)
		if err != nil {
			return err
		}
		feature.Summary = summary
		return o.features.Update(ctx, feature)
	case models.ContainerTask:
		task, err := o.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		task.Summary = summary
		return o.tasks.Update(ctx, task)
	default:
		return fmt.Errorf("unknown container type %q", containerType)
	}
}

func (o *transitionOrchestrator) commitStatus(ctx context.Context, containerType models.ContainerType, id uuid.UUID, status string) error {
	switch containerType {
	case models.ContainerProject:
		project, err := o.projects.Get(ctx, id)
		if err != nil {
			return err
		}
		project.Status = status
		return o.projects.Update(ctx, project)
	case models.ContainerFeature:
		feature, err := o.features.Get(ctx, id)
		if err != nil {
			return err
		}
		feature.Status = status
		return o.features.Update(ctx, feature)
	case models.ContainerTask:
		task, err := o.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		task.Status = status
		return o.tasks.Update(ctx, task)
	default:
		return fmt.Errorf("unknown container type %q", containerType)
	}
}

// countApplied counts applied cascades, children included.
func countApplied(cascades []AppliedCascade) int {
	n := 0
	for _, c := range cascades {
		if c.Applied {
			n++
		}
		n += countApplied(c.ChildCascades)
	}
	return n
}
