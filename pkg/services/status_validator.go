package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

// WorkflowSource supplies the active workflow configuration. A nil config
// means V1-compatibility mode: enum-only validation, no flow rules, no
// prerequisites.
type WorkflowSource interface {
	Active() *config.WorkflowConfig
}

// StatusValidator validates status strings and (from, to) transitions
// under the active flow and prerequisite rules.
type StatusValidator interface {
	// ValidateStatus checks a single status against the container's
	// domain. It never touches the store.
	ValidateStatus(status string, containerType models.ContainerType, tags []string) ValidationResult

	// ValidateTransition checks a (from, to) pair. When containerID is
	// non-nil and prerequisites are enabled, the semantic rules (child
	// completion, blockers, summary length) are evaluated against the
	// store.
	ValidateTransition(ctx context.Context, from, to string, containerType models.ContainerType, containerID *uuid.UUID, tags []string) (ValidationResult, error)
}

// environmentTags are the recognized deployment environment tags; the
// "deployed" status without one earns an advisory, never a block.
var environmentTags = map[string]struct{}{
	"staging": {}, "production": {}, "prod": {}, "canary": {}, "dev": {}, "development": {},
}

type statusValidator struct {
	flows    WorkflowSource
	tasks    repositories.TaskRepository
	features repositories.FeatureRepository
	deps     repositories.DependencyRepository
	logger   *zap.Logger
}

// NewStatusValidator creates the transition validator.
func NewStatusValidator(
	flows WorkflowSource,
	tasks repositories.TaskRepository,
	features repositories.FeatureRepository,
	deps repositories.DependencyRepository,
	logger *zap.Logger,
) StatusValidator {
	return &statusValidator{flows: flows, tasks: tasks, features: features, deps: deps, logger: logger}
}

func (v *statusValidator) ValidateStatus(status string, containerType models.ContainerType, tags []string) ValidationResult {
	normalized := models.NormalizeStatus(status)
	if normalized == "" {
		return Invalid("status cannot be empty")
	}

	cfg := v.flows.Active()
	if cfg == nil {
		// V1 mode: membership in the container's enum domain.
		if !models.StatusAllowed(normalized, containerType) {
			return Invalid(
				fmt.Sprintf("unknown %s status %q", containerType, normalized),
				models.StatusesFor(containerType)...)
		}
		return v.deployedAdvisory(normalized, tags)
	}

	union := cfg.AllStatuses(containerType)
	for _, s := range union {
		if s == normalized {
			return v.deployedAdvisory(normalized, tags)
		}
	}
	return Invalid(
		fmt.Sprintf("status %q is not defined in any %s flow", normalized, containerType),
		union...)
}

// deployedAdvisory suggests environment tagging when a container reaches
// "deployed" without saying where.
func (v *statusValidator) deployedAdvisory(status string, tags []string) ValidationResult {
	if status != models.StatusDeployed {
		return Valid()
	}
	for _, tag := range models.NormalizeTags(tags) {
		if _, ok := environmentTags[tag]; ok {
			return Valid()
		}
	}
	return ValidWithAdvisory(
		"status is 'deployed' but no environment tag is set; " +
			"consider tagging with one of: staging, production, prod, canary, dev, development")
}

func (v *statusValidator) ValidateTransition(ctx context.Context, from, to string, containerType models.ContainerType, containerID *uuid.UUID, tags []string) (ValidationResult, error) {
	if res := v.ValidateStatus(from, containerType, tags); !res.OK() {
		return res, nil
	}
	toRes := v.ValidateStatus(to, containerType, tags)
	if !toRes.OK() {
		return toRes, nil
	}
	advisory := toRes.Advisory

	f := models.NormalizeStatus(from)
	t := models.NormalizeStatus(to)
	if f == t {
		// Idempotent same-status transition is always permitted.
		return Valid().withAdvisory(advisory), nil
	}

	cfg := v.flows.Active()
	if cfg == nil {
		return Valid().withAdvisory(advisory), nil
	}

	path := cfg.ResolveFlowPath(containerType, tags, f)
	if path.IsTerminal(f) {
		return Invalid(fmt.Sprintf("cannot transition out of terminal status %q", f)), nil
	}

	rules := cfg.StatusValidation
	if path.IsEmergency(t) && rules.AllowEmergency {
		return Valid().withAdvisory(advisory), nil
	}

	fromIdx := path.IndexOf(f)
	toIdx := path.IndexOf(t)
	switch {
	case fromIdx >= 0 && toIdx >= 0:
		if toIdx < fromIdx {
			if rules.AllowBackward {
				return Valid().withAdvisory(advisory), nil
			}
			return Invalid(fmt.Sprintf("backward transition %q -> %q is disabled", f, t)), nil
		}
		if toIdx > fromIdx+1 && rules.EnforceSequential {
			return Invalid(
				fmt.Sprintf("cannot skip from %q to %q in flow %q", f, t, path.ActiveFlow),
				path.FlowSequence[fromIdx+1]), nil
		}
	default:
		// One endpoint sits outside the active flow sequence but passed
		// domain validation above: manual override.
		return Valid().withAdvisory(advisory), nil
	}

	if rules.ValidatePrerequisites && containerID != nil {
		res, err := v.checkPrerequisites(ctx, t, containerType, *containerID, cfg)
		if err != nil {
			return ValidationResult{}, err
		}
		if !res.OK() {
			return res, nil
		}
	}

	return Valid().withAdvisory(advisory), nil
}

// checkPrerequisites evaluates the semantic rules for the target status.
func (v *statusValidator) checkPrerequisites(ctx context.Context, target string, containerType models.ContainerType, containerID uuid.UUID, cfg *config.WorkflowConfig) (ValidationResult, error) {
	switch containerType {
	case models.ContainerFeature:
		switch target {
		case models.StatusInDevelopment:
			return v.featureHasTasks(ctx, containerID)
		case models.StatusTesting:
			return v.featureTasksFinished(ctx, containerID, cfg)
		case models.StatusCompleted:
			return v.featureTasksTerminal(ctx, containerID)
		}
	case models.ContainerProject:
		if target == models.StatusCompleted {
			return v.projectFeaturesTerminal(ctx, containerID, cfg)
		}
	case models.ContainerTask:
		switch target {
		case models.StatusInProgress:
			return v.taskNotBlocked(ctx, containerID)
		case models.StatusCompleted:
			return v.taskSummaryReady(ctx, containerID)
		}
	}
	return Valid(), nil
}

func (v *statusValidator) featureHasTasks(ctx context.Context, featureID uuid.UUID) (ValidationResult, error) {
	count, err := v.tasks.CountByFeature(ctx, featureID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to count feature tasks: %w", err)
	}
	if count < 1 {
		return Invalid("feature cannot enter development with no tasks"), nil
	}
	return Valid(), nil
}

func (v *statusValidator) featureTasksFinished(ctx context.Context, featureID uuid.UUID, cfg *config.WorkflowConfig) (ValidationResult, error) {
	tasks, err := v.tasks.FindByFeature(ctx, featureID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load feature tasks: %w", err)
	}
	if len(tasks) == 0 {
		return Invalid("feature cannot enter testing with no tasks"), nil
	}
	var unfinished []string
	for _, task := range tasks {
		status := models.NormalizeStatus(task.Status)
		if status == models.StatusCompleted {
			continue
		}
		path := cfg.ResolveFlowPath(models.ContainerTask, task.Tags, status)
		if path.IsTerminal(status) {
			continue
		}
		unfinished = append(unfinished, task.Title)
	}
	if len(unfinished) > 0 {
		return Invalid(fmt.Sprintf("tasks not finished: %s", strings.Join(unfinished, ", "))), nil
	}
	return Valid(), nil
}

func (v *statusValidator) featureTasksTerminal(ctx context.Context, featureID uuid.UUID) (ValidationResult, error) {
	counts, err := v.tasks.CountsByFeature(ctx, featureID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to count feature tasks: %w", err)
	}
	if !counts.AllIn(models.StatusCompleted, models.StatusCancelled, models.StatusDeferred) {
		return Invalid("feature cannot complete until every task is completed, cancelled, or deferred"), nil
	}
	return Valid(), nil
}

func (v *statusValidator) projectFeaturesTerminal(ctx context.Context, projectID uuid.UUID, cfg *config.WorkflowConfig) (ValidationResult, error) {
	counts, err := v.features.CountsByProject(ctx, projectID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to count project features: %w", err)
	}
	if counts.Total == 0 {
		return Invalid("project cannot complete with no features"), nil
	}
	path := cfg.ResolveFlowPath(models.ContainerFeature, nil, "")
	for status, n := range counts.ByStatus {
		if n > 0 && !path.IsTerminal(status) {
			return Invalid(fmt.Sprintf("project has %d feature(s) still at %q", n, status)), nil
		}
	}
	return Valid(), nil
}

// taskNotBlocked rejects in-progress while any incoming BLOCKS edge comes
// from a task that is neither completed nor cancelled.
func (v *statusValidator) taskNotBlocked(ctx context.Context, taskID uuid.UUID) (ValidationResult, error) {
	blockers, err := openBlockers(ctx, v.deps, v.tasks, taskID)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(blockers) > 0 {
		titles := make([]string, len(blockers))
		for i, b := range blockers {
			titles[i] = b.Title
		}
		return Invalid(fmt.Sprintf("task is blocked by: %s", strings.Join(titles, ", "))), nil
	}
	return Valid(), nil
}

func (v *statusValidator) taskSummaryReady(ctx context.Context, taskID uuid.UUID) (ValidationResult, error) {
	task, err := v.tasks.Get(ctx, taskID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load task: %w", err)
	}
	length := utf8.RuneCountInString(task.Summary)
	if length < models.SummaryMinLength || length > models.SummaryMaxLength {
		return Invalid(fmt.Sprintf(
			"task summary must be %d-%d characters before completion, got %d",
			models.SummaryMinLength, models.SummaryMaxLength, length)), nil
	}
	return Valid(), nil
}
