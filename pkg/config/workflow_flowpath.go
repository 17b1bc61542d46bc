package config

import "github.com/taskorchestrator/engine/pkg/models"

// FlowPath is the resolved flow for a particular (container type, tags,
// current status) triple.
type FlowPath struct {
	ActiveFlow           string   `json:"active_flow"`
	FlowSequence         []string `json:"flow_sequence"`
	CurrentPosition      int      `json:"current_position"`
	TerminalStatuses     []string `json:"terminal_statuses"`
	EmergencyTransitions []string `json:"emergency_transitions"`
	MatchedTags          []string `json:"matched_tags"`
}

// DefaultFlowName is the ActiveFlow value when no tag mapping matched.
const DefaultFlowName = "default"

// ResolveFlowPath selects the active flow for the container's tags.
// Mappings are evaluated in document order and the first whose tag set
// intersects the (normalized, deduplicated) container tags wins; otherwise
// the default flow applies. CurrentPosition is the index of currentStatus
// in the sequence, or -1 when the status sits outside the flow.
func (w *WorkflowConfig) ResolveFlowPath(containerType models.ContainerType, tags []string, currentStatus string) FlowPath {
	flows := w.flowsFor(containerType)
	if flows == nil {
		return FlowPath{ActiveFlow: DefaultFlowName, CurrentPosition: -1}
	}
	normalized := models.NormalizeTags(tags)
	current := models.NormalizeStatus(currentStatus)

	path := FlowPath{
		ActiveFlow:      DefaultFlowName,
		FlowSequence:    flows.DefaultFlow,
		CurrentPosition: -1,
	}
	if flows.EmergencyTransitions != nil {
		path.EmergencyTransitions = flows.EmergencyTransitions
	}
	if flows.TerminalStatuses != nil {
		path.TerminalStatuses = flows.TerminalStatuses
	}

	for _, mapping := range flows.FlowMappings {
		matched := intersect(normalized, mapping.Tags)
		if len(matched) == 0 {
			continue
		}
		if seq, ok := flows.NamedFlows[mapping.Flow]; ok {
			path.ActiveFlow = mapping.Flow
			path.FlowSequence = seq
			path.MatchedTags = matched
		}
		break // first match wins, even if the named flow is undeclared
	}

	path.CurrentPosition = path.IndexOf(current)
	return path
}

// IndexOf returns the position of a normalized status in the flow
// sequence, or -1.
func (p FlowPath) IndexOf(status string) int {
	for i, s := range p.FlowSequence {
		if s == status {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether the status is in the flow's terminal set.
func (p FlowPath) IsTerminal(status string) bool {
	status = models.NormalizeStatus(status)
	for _, s := range p.TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsEmergency reports whether the status is in the flow's emergency set.
func (p FlowPath) IsEmergency(status string) bool {
	status = models.NormalizeStatus(status)
	for _, s := range p.EmergencyTransitions {
		if s == status {
			return true
		}
	}
	return false
}

// Next returns the status after CurrentPosition, if any.
func (p FlowPath) Next() (string, bool) {
	if p.CurrentPosition < 0 || p.CurrentPosition+1 >= len(p.FlowSequence) {
		return "", false
	}
	return p.FlowSequence[p.CurrentPosition+1], true
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
