package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is the leaf of the container hierarchy. A task may belong to a
// project directly, to a feature, or to both; when it has a feature with a
// project, the task's project must match the feature's.
type Task struct {
	ID                   uuid.UUID  `json:"id"`
	ProjectID            *uuid.UUID `json:"project_id,omitempty"`
	FeatureID            *uuid.UUID `json:"feature_id,omitempty"`
	Title                string     `json:"title"`
	Summary              string     `json:"summary"`
	Description          *string    `json:"description,omitempty"`
	Status               string     `json:"status"`
	Priority             Priority   `json:"priority"`
	Complexity           int        `json:"complexity"`
	Tags                 []string   `json:"tags"`
	RequiresVerification bool       `json:"requires_verification"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	ModifiedAt           time.Time  `json:"modified_at"`
}

// Completion summary length bounds for tasks. A task cannot complete with a
// summary outside [SummaryMinLength, SummaryMaxLength].
const (
	SummaryMinLength = 300
	SummaryMaxLength = 500
)
