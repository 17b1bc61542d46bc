package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *database.DB) ProjectRepository {
	return &projectRepository{db: db}
}

const projectColumns = `id, name, summary, description, status, version, created_at, modified_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.Name, &p.Summary, &p.Description, &p.Status,
		&p.Version, &p.CreatedAt, &p.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	project.CreatedAt = now
	project.ModifiedAt = now
	project.Version = 1
	project.Status = models.NormalizeStatus(project.Status)
	if project.Status == "" {
		project.Status = models.StatusPlanning
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (id, name, summary, description, status, version, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			project.ID, project.Name, project.Summary, project.Description,
			project.Status, project.Version, project.CreatedAt, project.ModifiedAt,
		)
		if err != nil {
			return translateError(err, "create project")
		}
		return replaceTags(ctx, tx, models.ContainerProject, project.ID, project.Tags)
	})
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	project, err := scanProject(row)
	if err != nil {
		return nil, translateError(err, "get project")
	}
	if project.Tags, err = loadTags(ctx, r.db, models.ContainerProject, id); err != nil {
		return nil, err
	}
	return project, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	project.Status = models.NormalizeStatus(project.Status)
	modified := time.Now()

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE projects
			SET name = $1, summary = $2, description = $3, status = $4,
				version = version + 1, modified_at = $5
			WHERE id = $6 AND version = $7`,
			project.Name, project.Summary, project.Description, project.Status,
			modified, project.ID, project.Version,
		)
		if err != nil {
			return translateError(err, "update project")
		}
		if tag.RowsAffected() == 0 {
			return versionConflictOrMissing(ctx, tx, "projects", project.ID)
		}
		if err := replaceTags(ctx, tx, models.ContainerProject, project.ID, project.Tags); err != nil {
			return err
		}
		project.Version++
		project.ModifiedAt = modified
		return nil
	})
}

func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := deleteTags(ctx, tx, models.ContainerProject, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM sections WHERE entity_type = 'project' AND entity_id = $1`, id); err != nil {
			return translateError(err, "delete project sections")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return translateError(err, "delete project")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}
