// Package models contains domain types for the task orchestrator engine.
package models

import "strings"

// ContainerType identifies one of the three hierarchy levels.
type ContainerType string

const (
	ContainerProject ContainerType = "project"
	ContainerFeature ContainerType = "feature"
	ContainerTask    ContainerType = "task"
)

// ValidContainerTypes contains all valid container type values.
var ValidContainerTypes = []ContainerType{
	ContainerProject,
	ContainerFeature,
	ContainerTask,
}

// IsValidContainerType checks if the given type is valid.
func IsValidContainerType(t ContainerType) bool {
	for _, v := range ValidContainerTypes {
		if v == t {
			return true
		}
	}
	return false
}

// NormalizeStatus canonicalizes a status string: trimmed, lowercased, with
// underscores folded to hyphens. "IN_PROGRESS", "in_progress" and
// "in-progress" all normalize to "in-progress".
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}

// NormalizeTags lowercases and deduplicates a tag set, preserving first
// occurrence order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Status constants shared across container types.
const (
	StatusPlanning      = "planning"
	StatusInDevelopment = "in-development"
	StatusTesting       = "testing"
	StatusDeployed      = "deployed"
	StatusPending       = "pending"
	StatusBacklog       = "backlog"
	StatusInProgress    = "in-progress"
	StatusInReview      = "in-review"
	StatusBlocked       = "blocked"
	StatusOnHold        = "on-hold"
	StatusCompleted     = "completed"
	StatusCancelled     = "cancelled"
	StatusDeferred      = "deferred"
)

// projectStatuses and featureStatuses share the same membership; tasks have
// their own. These sets are the enum-only (V1 compatibility) domain used
// when no workflow config is loaded, and the manual-override domain in V2.
var (
	projectStatuses = []string{
		StatusPlanning, StatusInDevelopment, StatusTesting, StatusDeployed,
		StatusBlocked, StatusOnHold, StatusCompleted, StatusCancelled,
	}
	taskStatuses = []string{
		StatusPending, StatusBacklog, StatusInProgress, StatusInReview,
		StatusBlocked, StatusOnHold, StatusCompleted, StatusCancelled,
		StatusDeferred,
	}
)

// StatusesFor returns the allowed status domain for a container type.
func StatusesFor(containerType ContainerType) []string {
	if containerType == ContainerTask {
		return taskStatuses
	}
	return projectStatuses
}

// StatusAllowed reports whether a normalized status is in the container's
// allowed domain.
func StatusAllowed(status string, containerType ContainerType) bool {
	for _, s := range StatusesFor(containerType) {
		if s == status {
			return true
		}
	}
	return false
}

// Role classifies a status for response enrichment.
type Role string

const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleBlocked  Role = "blocked"
	RoleTerminal Role = "terminal"
)

// roleByStatus is the static classification. Terminal membership is
// overridden by the active flow's terminal_statuses when config is loaded.
var roleByStatus = map[string]Role{
	StatusPending:       RoleQueue,
	StatusBacklog:       RoleQueue,
	StatusPlanning:      RoleQueue,
	StatusDeferred:      RoleQueue,
	StatusInProgress:    RoleWork,
	StatusInDevelopment: RoleWork,
	StatusInReview:      RoleReview,
	StatusTesting:       RoleReview,
	StatusDeployed:      RoleReview,
	StatusBlocked:       RoleBlocked,
	StatusOnHold:        RoleBlocked,
	StatusCompleted:     RoleTerminal,
	StatusCancelled:     RoleTerminal,
}

// RoleForStatus returns the classification role for a normalized status.
func RoleForStatus(status string) (Role, bool) {
	r, ok := roleByStatus[NormalizeStatus(status)]
	return r, ok
}

// IsTerminalStatus reports whether a status is terminal under the static
// classification. Flow config terminal_statuses take precedence where
// present; this is the V1 fallback.
func IsTerminalStatus(status string) bool {
	r, ok := RoleForStatus(status)
	return ok && r == RoleTerminal
}
