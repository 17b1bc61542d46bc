package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskorchestrator/engine/pkg/database"
	"github.com/taskorchestrator/engine/pkg/models"
)

// loadTags fetches the tag set for one entity, ordered for stable output.
func loadTags(ctx context.Context, q database.Querier, entityType models.ContainerType, entityID uuid.UUID) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT tag FROM entity_tags WHERE entity_type = $1 AND entity_id = $2 ORDER BY tag`,
		entityType, entityID)
	if err != nil {
		return nil, translateError(err, "load tags")
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, translateError(err, "scan tag")
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// replaceTags overwrites the tag set for one entity. Tags are normalized
// on the way in so lookups compare exact values.
func replaceTags(ctx context.Context, q database.Querier, entityType models.ContainerType, entityID uuid.UUID, tags []string) error {
	if _, err := q.Exec(ctx,
		`DELETE FROM entity_tags WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID); err != nil {
		return translateError(err, "clear tags")
	}
	for _, tag := range models.NormalizeTags(tags) {
		if _, err := q.Exec(ctx,
			`INSERT INTO entity_tags (entity_type, entity_id, tag) VALUES ($1, $2, $3)`,
			entityType, entityID, tag); err != nil {
			return translateError(err, "insert tag")
		}
	}
	return nil
}

// deleteTags removes every tag row for one entity.
func deleteTags(ctx context.Context, q database.Querier, entityType models.ContainerType, entityID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`DELETE FROM entity_tags WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	if err != nil {
		return translateError(err, "delete tags")
	}
	return nil
}
