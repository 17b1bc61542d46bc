package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/models"
)

// DependencyRepository defines the interface for dependency edge access.
type DependencyRepository interface {
	Create(ctx context.Context, dep *models.Dependency) error
	Delete(ctx context.Context, id uuid.UUID) error
	// FindByFromTaskID returns edges originating at the task (the tasks it
	// blocks or relates to).
	FindByFromTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Dependency, error)
	// FindByToTaskID returns edges pointing at the task (its blockers).
	FindByToTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Dependency, error)
	// DeleteByTaskID removes every edge touching the task, in either
	// direction. Used by completion cleanup.
	DeleteByTaskID(ctx context.Context, taskID uuid.UUID) error
}

type dependencyRepository struct {
	db *database.DB
}

// NewDependencyRepository creates a new dependency repository.
func NewDependencyRepository(db *database.DB) DependencyRepository {
	return &dependencyRepository{db: db}
}

func (r *dependencyRepository) Create(ctx context.Context, dep *models.Dependency) error {
	if dep.FromTaskID == dep.ToTaskID {
		return fmt.Errorf("dependency cannot reference itself: %w", apperrors.ErrValidation)
	}
	if !models.IsValidDependencyType(dep.Type) {
		return fmt.Errorf("unknown dependency type %q: %w", dep.Type, apperrors.ErrValidation)
	}
	if dep.ID == uuid.Nil {
		dep.ID = uuid.New()
	}
	dep.CreatedAt = time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO dependencies (id, from_task_id, to_task_id, type, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		dep.ID, dep.FromTaskID, dep.ToTaskID, dep.Type, dep.CreatedAt,
	)
	return translateError(err, "create dependency")
}

func (r *dependencyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dependencies WHERE id = $1`, id)
	if err != nil {
		return translateError(err, "delete dependency")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dependencyRepository) FindByFromTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Dependency, error) {
	return r.findAll(ctx,
		`SELECT id, from_task_id, to_task_id, type, created_at
		 FROM dependencies WHERE from_task_id = $1 ORDER BY created_at ASC`, taskID)
}

func (r *dependencyRepository) FindByToTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Dependency, error) {
	return r.findAll(ctx,
		`SELECT id, from_task_id, to_task_id, type, created_at
		 FROM dependencies WHERE to_task_id = $1 ORDER BY created_at ASC`, taskID)
}

func (r *dependencyRepository) findAll(ctx context.Context, query string, taskID uuid.UUID) ([]*models.Dependency, error) {
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, translateError(err, "find dependencies")
	}
	defer rows.Close()

	var deps []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.ID, &d.FromTaskID, &d.ToTaskID, &d.Type, &d.CreatedAt); err != nil {
			return nil, translateError(err, "scan dependency")
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

func (r *dependencyRepository) DeleteByTaskID(ctx context.Context, taskID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM dependencies WHERE from_task_id = $1 OR to_task_id = $1`, taskID)
	return translateError(err, "delete dependencies for task")
}
