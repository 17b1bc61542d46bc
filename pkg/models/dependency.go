package models

import (
	"time"

	"github.com/google/uuid"
)

// DependencyType labels an edge between two tasks.
type DependencyType string

const (
	DependencyBlocks      DependencyType = "BLOCKS"
	DependencyIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	DependencyRelatesTo   DependencyType = "RELATES_TO"
)

// IsValidDependencyType checks if the given type is valid.
func IsValidDependencyType(t DependencyType) bool {
	return t == DependencyBlocks || t == DependencyIsBlockedBy || t == DependencyRelatesTo
}

// Dependency is a directed edge between two tasks. Self-loops are rejected;
// (from, to, type) is unique. Cycles among BLOCKS edges are not prevented,
// they are broken by status: a completed or cancelled task no longer
// blocks.
type Dependency struct {
	ID         uuid.UUID      `json:"id"`
	FromTaskID uuid.UUID      `json:"from_task_id"`
	ToTaskID   uuid.UUID      `json:"to_task_id"`
	Type       DependencyType `json:"type"`
	CreatedAt  time.Time      `json:"created_at"`
}
