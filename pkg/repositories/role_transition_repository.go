package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/models"
)

// RoleTransitionRepository records the audit trail of applied transitions.
type RoleTransitionRepository interface {
	Record(ctx context.Context, rt *models.RoleTransition) error
	FindByEntity(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.RoleTransition, error)
}

type roleTransitionRepository struct {
	db *database.DB
}

// NewRoleTransitionRepository creates a new role transition repository.
func NewRoleTransitionRepository(db *database.DB) RoleTransitionRepository {
	return &roleTransitionRepository{db: db}
}

func (r *roleTransitionRepository) Record(ctx context.Context, rt *models.RoleTransition) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	rt.CreatedAt = time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO role_transitions (id, entity_type, entity_id, from_status, to_status,
			from_role, to_role, trigger, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rt.ID, rt.EntityType, rt.EntityID, rt.FromStatus, rt.ToStatus,
		rt.FromRole, rt.ToRole, rt.Trigger, rt.CreatedAt,
	)
	return translateError(err, "record role transition")
}

func (r *roleTransitionRepository) FindByEntity(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.RoleTransition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, entity_type, entity_id, from_status, to_status, from_role, to_role, trigger, created_at
		FROM role_transitions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC`,
		entityType, entityID)
	if err != nil {
		return nil, translateError(err, "find role transitions")
	}
	defer rows.Close()

	var out []*models.RoleTransition
	for rows.Next() {
		var rt models.RoleTransition
		if err := rows.Scan(&rt.ID, &rt.EntityType, &rt.EntityID, &rt.FromStatus, &rt.ToStatus,
			&rt.FromRole, &rt.ToRole, &rt.Trigger, &rt.CreatedAt); err != nil {
			return nil, translateError(err, "scan role transition")
		}
		out = append(out, &rt)
	}
	return out, rows.Err()
}
