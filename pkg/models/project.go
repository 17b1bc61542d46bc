package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the top level of the container hierarchy. It exclusively owns
// its features; children reference it by id only.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status"`
	Tags        []string  `json:"tags"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}
