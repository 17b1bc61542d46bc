package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the scheduling priority of a feature or task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriorities contains all valid priority values.
var ValidPriorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// IsValidPriority checks if the given priority is valid.
func IsValidPriority(p Priority) bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}

// Feature groups tasks under an optional parent project.
type Feature struct {
	ID                   uuid.UUID  `json:"id"`
	ProjectID            *uuid.UUID `json:"project_id,omitempty"`
	Name                 string     `json:"name"`
	Summary              string     `json:"summary"`
	Description          *string    `json:"description,omitempty"`
	Status               string     `json:"status"`
	Priority             Priority   `json:"priority"`
	Tags                 []string   `json:"tags"`
	RequiresVerification bool       `json:"requires_verification"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	ModifiedAt           time.Time  `json:"modified_at"`
}
