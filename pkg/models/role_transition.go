package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleTransition is one audit row written for every applied status
// transition, cascaded ones included.
type RoleTransition struct {
	ID         uuid.UUID     `json:"id"`
	EntityType ContainerType `json:"entity_type"`
	EntityID   uuid.UUID     `json:"entity_id"`
	FromStatus string        `json:"from_status"`
	ToStatus   string        `json:"to_status"`
	FromRole   *string       `json:"from_role,omitempty"`
	ToRole     *string       `json:"to_role,omitempty"`
	Trigger    string        `json:"trigger"`
	CreatedAt  time.Time     `json:"created_at"`
}
