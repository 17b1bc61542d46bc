package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/models"
)

// TaskRepository defines the interface for task data access.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// Update writes the row optimistically: it fails with
	// apperrors.ErrVersionConflict when the stored version differs from
	// task.Version, and bumps task.Version on success.
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error)
	FindByFeature(ctx context.Context, featureID uuid.UUID) ([]*models.Task, error)
	CountByFeature(ctx context.Context, featureID uuid.UUID) (int, error)
	// CountsByFeature returns child task counts grouped by status.
	CountsByFeature(ctx context.Context, featureID uuid.UUID) (models.StatusCounts, error)
}

type taskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *database.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, project_id, feature_id, title, summary, description,
	status, priority, complexity, requires_verification, version, created_at, modified_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.FeatureID, &t.Title, &t.Summary, &t.Description,
		&t.Status, &t.Priority, &t.Complexity, &t.RequiresVerification,
		&t.Version, &t.CreatedAt, &t.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now()
	task.CreatedAt = now
	task.ModifiedAt = now
	task.Version = 1
	task.Status = models.NormalizeStatus(task.Status)
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Complexity == 0 {
		task.Complexity = 5
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, project_id, feature_id, title, summary, description,
				status, priority, complexity, requires_verification, version, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			task.ID, task.ProjectID, task.FeatureID, task.Title, task.Summary, task.Description,
			task.Status, task.Priority, task.Complexity, task.RequiresVerification,
			task.Version, task.CreatedAt, task.ModifiedAt,
		)
		if err != nil {
			return translateError(err, "create task")
		}
		return replaceTags(ctx, tx, models.ContainerTask, task.ID, task.Tags)
	})
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, translateError(err, "get task")
	}
	if task.Tags, err = loadTags(ctx, r.db, models.ContainerTask, id); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	task.Status = models.NormalizeStatus(task.Status)
	modified := time.Now()

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks
			SET project_id = $1, feature_id = $2, title = $3, summary = $4,
				description = $5, status = $6, priority = $7, complexity = $8,
				requires_verification = $9, version = version + 1, modified_at = $10
			WHERE id = $11 AND version = $12`,
			task.ProjectID, task.FeatureID, task.Title, task.Summary,
			task.Description, task.Status, task.Priority, task.Complexity,
			task.RequiresVerification, modified, task.ID, task.Version,
		)
		if err != nil {
			return translateError(err, "update task")
		}
		if tag.RowsAffected() == 0 {
			return versionConflictOrMissing(ctx, tx, "tasks", task.ID)
		}
		if err := replaceTags(ctx, tx, models.ContainerTask, task.ID, task.Tags); err != nil {
			return err
		}
		task.Version++
		task.ModifiedAt = modified
		return nil
	})
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := deleteTags(ctx, tx, models.ContainerTask, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM sections WHERE entity_type = 'task' AND entity_id = $1`, id); err != nil {
			return translateError(err, "delete task sections")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		if err != nil {
			return translateError(err, "delete task")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

func (r *taskRepository) FindByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	return r.findAll(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = $1
		ORDER BY priority DESC, created_at ASC`, projectID)
}

func (r *taskRepository) FindByFeature(ctx context.Context, featureID uuid.UUID) ([]*models.Task, error) {
	return r.findAll(ctx, `SELECT `+taskColumns+` FROM tasks WHERE feature_id = $1
		ORDER BY priority DESC, created_at ASC`, featureID)
}

func (r *taskRepository) findAll(ctx context.Context, query string, arg any) ([]*models.Task, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, translateError(err, "find tasks")
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, translateError(err, "scan task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate tasks")
	}
	for _, task := range tasks {
		if task.Tags, err = loadTags(ctx, r.db, models.ContainerTask, task.ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (r *taskRepository) CountByFeature(ctx context.Context, featureID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE feature_id = $1`, featureID).Scan(&count)
	if err != nil {
		return 0, translateError(err, "count tasks")
	}
	return count, nil
}

func (r *taskRepository) CountsByFeature(ctx context.Context, featureID uuid.UUID) (models.StatusCounts, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM tasks WHERE feature_id = $1 GROUP BY status`, featureID)
	if err != nil {
		return models.StatusCounts{}, translateError(err, "count tasks by status")
	}
	defer rows.Close()

	counts := models.StatusCounts{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, translateError(err, "scan task counts")
		}
		counts.ByStatus[status] = n
		counts.Total += n
	}
	return counts, rows.Err()
}

// versionConflictOrMissing distinguishes a lost optimistic lock from a
// deleted row after a zero-row UPDATE.
func versionConflictOrMissing(ctx context.Context, tx pgx.Tx, table string, id uuid.UUID) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := tx.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return translateError(err, "check existence")
	}
	if exists {
		return apperrors.ErrVersionConflict
	}
	return apperrors.ErrNotFound
}
