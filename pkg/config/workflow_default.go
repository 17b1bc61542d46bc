package config

import "github.com/taskorchestrator/engine/pkg/models"

// DefaultWorkflowConfig returns the bundled workflow configuration used
// when no .taskorchestrator/config.yaml exists.
//
// Default flows:
//
//	project/feature: planning → in-development → testing → completed
//	task:            pending → in-progress → in-review → completed
//
// Tasks tagged hotfix, urgent or critical skip review. Features tagged
// with an environment get a flow that deploys before completing. The
// emergency set (blocked, on-hold, cancelled) is reachable from any
// non-terminal status.
func DefaultWorkflowConfig() *WorkflowConfig {
	depth := DefaultCascadeMaxDepth
	return &WorkflowConfig{
		Version: "2.0",
		StatusProgression: map[string]*ContainerFlows{
			string(models.ContainerProject): {
				DefaultFlow: []string{
					models.StatusPlanning, models.StatusInDevelopment,
					models.StatusTesting, models.StatusCompleted,
				},
				NamedFlows:           map[string][]string{},
				EmergencyTransitions: []string{models.StatusBlocked, models.StatusOnHold, models.StatusCancelled},
				TerminalStatuses:     []string{models.StatusCompleted, models.StatusCancelled},
			},
			string(models.ContainerFeature): {
				DefaultFlow: []string{
					models.StatusPlanning, models.StatusInDevelopment,
					models.StatusTesting, models.StatusCompleted,
				},
				NamedFlows: map[string][]string{
					"release": {
						models.StatusPlanning, models.StatusInDevelopment,
						models.StatusTesting, models.StatusDeployed,
						models.StatusCompleted,
					},
				},
				FlowMappings: []FlowMapping{
					{Tags: []string{"staging", "production", "prod", "canary"}, Flow: "release"},
				},
				EmergencyTransitions: []string{models.StatusBlocked, models.StatusOnHold, models.StatusCancelled},
				TerminalStatuses:     []string{models.StatusCompleted, models.StatusCancelled},
			},
			string(models.ContainerTask): {
				DefaultFlow: []string{
					models.StatusPending, models.StatusInProgress,
					models.StatusInReview, models.StatusCompleted,
				},
				NamedFlows: map[string][]string{
					"hotfix": {
						models.StatusPending, models.StatusInProgress,
						models.StatusCompleted,
					},
				},
				FlowMappings: []FlowMapping{
					{Tags: []string{"hotfix", "urgent", "critical"}, Flow: "hotfix"},
				},
				EmergencyTransitions: []string{models.StatusBlocked, models.StatusOnHold, models.StatusCancelled},
				TerminalStatuses:     []string{models.StatusCompleted, models.StatusCancelled},
			},
		},
		StatusValidation: StatusValidation{
			EnforceSequential:     true,
			AllowBackward:         true,
			AllowEmergency:        true,
			ValidatePrerequisites: true,
		},
		AutoCascade:       AutoCascade{Enabled: true, MaxDepth: &depth},
		CompletionCleanup: CompletionCleanup{Enabled: false},
	}
}
