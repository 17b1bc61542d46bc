package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/engine/pkg/models"
)

// WorkflowConfig is the parsed .taskorchestrator/config.yaml document. It
// is data, not code: flow sequences, tag mappings, emergency sets, cascade
// depth and cleanup policy all live here. When the file is missing the
// bundled default applies; when it is malformed the engine drops to
// V1-compatibility mode (no config at all, enum-only validation).
type WorkflowConfig struct {
	Version           string                     `yaml:"version"`
	StatusProgression map[string]*ContainerFlows `yaml:"status_progression"`
	StatusValidation  StatusValidation           `yaml:"status_validation"`
	AutoCascade       AutoCascade                `yaml:"auto_cascade"`
	CompletionCleanup CompletionCleanup          `yaml:"completion_cleanup"`
}

// ContainerFlows holds the flow definitions for one container type. Named
// flows are declared as sibling keys ending in "_flow" (for example
// "hotfix_flow"); flow_mappings select among them by tag, first match
// wins.
type ContainerFlows struct {
	DefaultFlow          []string
	NamedFlows           map[string][]string // keyed by name without the "_flow" suffix
	FlowMappings         []FlowMapping
	EmergencyTransitions []string
	TerminalStatuses     []string
}

// FlowMapping selects a named flow when any of its tags matches the
// container's tag set.
type FlowMapping struct {
	Tags []string `yaml:"tags"`
	Flow string   `yaml:"flow"`
}

// StatusValidation toggles the transition rule set.
type StatusValidation struct {
	EnforceSequential     bool `yaml:"enforce_sequential"`
	AllowBackward         bool `yaml:"allow_backward"`
	AllowEmergency        bool `yaml:"allow_emergency"`
	ValidatePrerequisites bool `yaml:"validate_prerequisites"`
}

// AutoCascade controls upward status propagation. MaxDepth is a pointer so
// an explicit 0 (cascades disabled by depth) is distinguishable from an
// absent key (default depth).
type AutoCascade struct {
	Enabled  bool `yaml:"enabled"`
	MaxDepth *int `yaml:"max_depth"`
}

// CompletionCleanup controls deletion of terminal child tasks when a
// feature reaches a terminal status.
type CompletionCleanup struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultCascadeMaxDepth bounds cascade recursion. The hierarchy is three
// levels deep, so greater depths are meaningless.
const DefaultCascadeMaxDepth = 3

// UnmarshalYAML decodes a container section, capturing arbitrary
// "<name>_flow" keys as named flows alongside the fixed keys.
func (c *ContainerFlows) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("status_progression entry must be a mapping")
	}
	c.NamedFlows = make(map[string][]string)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		node := value.Content[i+1]
		switch key {
		case "default_flow":
			if err := node.Decode(&c.DefaultFlow); err != nil {
				return fmt.Errorf("default_flow: %w", err)
			}
		case "flow_mappings":
			if err := node.Decode(&c.FlowMappings); err != nil {
				return fmt.Errorf("flow_mappings: %w", err)
			}
		case "emergency_transitions":
			if err := node.Decode(&c.EmergencyTransitions); err != nil {
				return fmt.Errorf("emergency_transitions: %w", err)
			}
		case "terminal_statuses":
			if err := node.Decode(&c.TerminalStatuses); err != nil {
				return fmt.Errorf("terminal_statuses: %w", err)
			}
		default:
			if strings.HasSuffix(key, "_flow") {
				var seq []string
				if err := node.Decode(&seq); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				c.NamedFlows[strings.TrimSuffix(key, "_flow")] = seq
			}
		}
	}
	return nil
}

// normalize lowercases every status string in the document so lookups can
// compare exact values.
func (w *WorkflowConfig) normalize() {
	for _, flows := range w.StatusProgression {
		if flows == nil {
			continue
		}
		flows.DefaultFlow = normalizeStatuses(flows.DefaultFlow)
		for name, seq := range flows.NamedFlows {
			flows.NamedFlows[name] = normalizeStatuses(seq)
		}
		flows.EmergencyTransitions = normalizeStatuses(flows.EmergencyTransitions)
		flows.TerminalStatuses = normalizeStatuses(flows.TerminalStatuses)
		for i := range flows.FlowMappings {
			flows.FlowMappings[i].Tags = models.NormalizeTags(flows.FlowMappings[i].Tags)
		}
	}
}

func normalizeStatuses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, models.NormalizeStatus(s))
	}
	return out
}

// flowsFor returns the container section, falling back to the bundled
// default section when the document omits one.
func (w *WorkflowConfig) flowsFor(containerType models.ContainerType) *ContainerFlows {
	if flows, ok := w.StatusProgression[string(containerType)]; ok && flows != nil {
		return flows
	}
	return DefaultWorkflowConfig().StatusProgression[string(containerType)]
}

// AllStatuses returns the union of statuses across every flow defined for
// the container type, including emergency transitions.
func (w *WorkflowConfig) AllStatuses(containerType models.ContainerType) []string {
	flows := w.flowsFor(containerType)
	if flows == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(seq []string) {
		for _, s := range seq {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	add(flows.DefaultFlow)
	for _, seq := range flows.NamedFlows {
		add(seq)
	}
	add(flows.EmergencyTransitions)
	add(flows.TerminalStatuses)
	return out
}

// MaxDepth returns the configured cascade depth bound. An absent key means
// the default; an explicit zero disables cascades entirely.
func (w *WorkflowConfig) MaxDepth() int {
	if w.AutoCascade.MaxDepth == nil {
		return DefaultCascadeMaxDepth
	}
	return *w.AutoCascade.MaxDepth
}
