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

// SectionRepository defines the interface for section data access.
type SectionRepository interface {
	Create(ctx context.Context, section *models.Section) error
	Get(ctx context.Context, id uuid.UUID) (*models.Section, error)
	Update(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByEntity(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.Section, error)
	// GetByTitle returns the section with the given title, or
	// apperrors.ErrNotFound. The verification gate uses this to find the
	// "Verification" section.
	GetByTitle(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID, title string) (*models.Section, error)
}

type sectionRepository struct {
	db *database.DB
}

// NewSectionRepository creates a new section repository.
func NewSectionRepository(db *database.DB) SectionRepository {
	return &sectionRepository{db: db}
}

const sectionColumns = `id, entity_type, entity_id, title, usage_description,
	content, content_format, ordinal, version, created_at, modified_at`

func scanSection(row pgx.Row) (*models.Section, error) {
	var s models.Section
	err := row.Scan(
		&s.ID, &s.EntityType, &s.EntityID, &s.Title, &s.UsageDescription,
		&s.Content, &s.ContentFormat, &s.Ordinal, &s.Version, &s.CreatedAt, &s.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == uuid.Nil {
		section.ID = uuid.New()
	}
	now := time.Now()
	section.CreatedAt = now
	section.ModifiedAt = now
	section.Version = 1
	if section.ContentFormat == "" {
		section.ContentFormat = models.FormatMarkdown
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO sections (id, entity_type, entity_id, title, usage_description,
			content, content_format, ordinal, version, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		section.ID, section.EntityType, section.EntityID, section.Title,
		section.UsageDescription, section.Content, section.ContentFormat,
		section.Ordinal, section.Version, section.CreatedAt, section.ModifiedAt,
	)
	return translateError(err, "create section")
}

func (r *sectionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Section, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = $1`, id)
	section, err := scanSection(row)
	if err != nil {
		return nil, translateError(err, "get section")
	}
	return section, nil
}

func (r *sectionRepository) Update(ctx context.Context, section *models.Section) error {
	modified := time.Now()
	tag, err := r.db.Exec(ctx, `
		UPDATE sections
		SET title = $1, usage_description = $2, content = $3, content_format = $4,
			ordinal = $5, version = version + 1, modified_at = $6
		WHERE id = $7 AND version = $8`,
		section.Title, section.UsageDescription, section.Content, section.ContentFormat,
		section.Ordinal, modified, section.ID, section.Version,
	)
	if err != nil {
		return translateError(err, "update section")
	}
	if tag.RowsAffected() == 0 {
		return r.db.WithTx(ctx, func(tx pgx.Tx) error {
			return versionConflictOrMissing(ctx, tx, "sections", section.ID)
		})
	}
	section.Version++
	section.ModifiedAt = modified
	return nil
}

func (r *sectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return translateError(err, "delete section")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *sectionRepository) FindByEntity(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.Section, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sectionColumns+` FROM sections
		 WHERE entity_type = $1 AND entity_id = $2 ORDER BY ordinal ASC`,
		entityType, entityID)
	if err != nil {
		return nil, translateError(err, "find sections")
	}
	defer rows.Close()

	var sections []*models.Section
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, translateError(err, "scan section")
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

func (r *sectionRepository) GetByTitle(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID, title string) (*models.Section, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sectionColumns+` FROM sections
		 WHERE entity_type = $1 AND entity_id = $2 AND title = $3`,
		entityType, entityID, title)
	section, err := scanSection(row)
	if err != nil {
		return nil, translateError(err, "get section by title")
	}
	return section, nil
}
