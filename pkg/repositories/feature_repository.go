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

// FeatureRepository defines the interface for feature data access.
type FeatureRepository interface {
	Create(ctx context.Context, feature *models.Feature) error
	Get(ctx context.Context, id uuid.UUID) (*models.Feature, error)
	Update(ctx context.Context, feature *models.Feature) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
	// CountsByProject returns child feature counts grouped by status.
	CountsByProject(ctx context.Context, projectID uuid.UUID) (models.StatusCounts, error)
}

type featureRepository struct {
	db *database.DB
}

// NewFeatureRepository creates a new feature repository.
func NewFeatureRepository(db *database.DB) FeatureRepository {
	return &featureRepository{db: db}
}

const featureColumns = `id, project_id, name, summary, description, status,
	priority, requires_verification, version, created_at, modified_at`

func scanFeature(row pgx.Row) (*models.Feature, error) {
	var f models.Feature
	err := row.Scan(
		&f.ID, &f.ProjectID, &f.Name, &f.Summary, &f.Description, &f.Status,
		&f.Priority, &f.RequiresVerification, &f.Version, &f.CreatedAt, &f.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *featureRepository) Create(ctx context.Context, feature *models.Feature) error {
	if feature.ID == uuid.Nil {
		feature.ID = uuid.New()
	}
	now := time.Now()
	feature.CreatedAt = now
	feature.ModifiedAt = now
	feature.Version = 1
	feature.Status = models.NormalizeStatus(feature.Status)
	if feature.Status == "" {
		feature.Status = models.StatusPlanning
	}
	if feature.Priority == "" {
		feature.Priority = models.PriorityMedium
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO features (id, project_id, name, summary, description, status,
				priority, requires_verification, version, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			feature.ID, feature.ProjectID, feature.Name, feature.Summary, feature.Description,
			feature.Status, feature.Priority, feature.RequiresVerification,
			feature.Version, feature.CreatedAt, feature.ModifiedAt,
		)
		if err != nil {
			return translateError(err, "create feature")
		}
		return replaceTags(ctx, tx, models.ContainerFeature, feature.ID, feature.Tags)
	})
}

func (r *featureRepository) Get(ctx context.Context, id uuid.UUID) (*models.Feature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1`, id)
	feature, err := scanFeature(row)
	if err != nil {
		return nil, translateError(err, "get feature")
	}
	if feature.Tags, err = loadTags(ctx, r.db, models.ContainerFeature, id); err != nil {
		return nil, err
	}
	return feature, nil
}

func (r *featureRepository) Update(ctx context.Context, feature *models.Feature) error {
	feature.Status = models.NormalizeStatus(feature.Status)
	modified := time.Now()

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE features
			SET project_id = $1, name = $2, summary = $3, description = $4,
				status = $5, priority = $6, requires_verification = $7,
				version = version + 1, modified_at = $8
			WHERE id = $9 AND version = $10`,
			feature.ProjectID, feature.Name, feature.Summary, feature.Description,
			feature.Status, feature.Priority, feature.RequiresVerification,
			modified, feature.ID, feature.Version,
		)
		if err != nil {
			return translateError(err, "update feature")
		}
		if tag.RowsAffected() == 0 {
			return versionConflictOrMissing(ctx, tx, "features", feature.ID)
		}
		if err := replaceTags(ctx, tx, models.ContainerFeature, feature.ID, feature.Tags); err != nil {
			return err
		}
		feature.Version++
		feature.ModifiedAt = modified
		return nil
	})
}

func (r *featureRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := deleteTags(ctx, tx, models.ContainerFeature, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM sections WHERE entity_type = 'feature' AND entity_id = $1`, id); err != nil {
			return translateError(err, "delete feature sections")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM features WHERE id = $1`, id)
		if err != nil {
			return translateError(err, "delete feature")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

func (r *featureRepository) FindByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+featureColumns+` FROM features WHERE project_id = $1 ORDER BY created_at ASC`,
		projectID)
	if err != nil {
		return nil, translateError(err, "find features")
	}
	defer rows.Close()

	var features []*models.Feature
	for rows.Next() {
		feature, err := scanFeature(rows)
		if err != nil {
			return nil, translateError(err, "scan feature")
		}
		features = append(features, feature)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate features")
	}
	for _, feature := range features {
		if feature.Tags, err = loadTags(ctx, r.db, models.ContainerFeature, feature.ID); err != nil {
			return nil, err
		}
	}
	return features, nil
}

func (r *featureRepository) CountsByProject(ctx context.Context, projectID uuid.UUID) (models.StatusCounts, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM features WHERE project_id = $1 GROUP BY status`, projectID)
	if err != nil {
		return models.StatusCounts{}, translateError(err, "count features by status")
	}
	defer rows.Close()

	counts := models.StatusCounts{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, translateError(err, "scan feature counts")
		}
		counts.ByStatus[status] = n
		counts.Total += n
	}
	return counts, rows.Err()
}
