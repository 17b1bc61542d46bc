package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

// EntityState is the type-erased view of a container row that the workflow
// layer operates on.
type EntityState struct {
	Title                string   `json:"title"`
	Status               string   `json:"status"`
	Tags                 []string `json:"tags"`
	RequiresVerification bool     `json:"requires_verification"`
}

// EntityReader resolves a container reference to its current state. Status
// comes back normalized.
type EntityReader interface {
	GetState(ctx context.Context, containerType models.ContainerType, id uuid.UUID) (EntityState, error)
}

type entityReader struct {
	projects repositories.ProjectRepository
	features repositories.FeatureRepository
	tasks    repositories.TaskRepository
}

// NewEntityReader creates the read-side entity resolver.
func NewEntityReader(
	projects repositories.ProjectRepository,
	features repositories.FeatureRepository,
	tasks repositories.TaskRepository,
) EntityReader {
	return &entityReader{projects: projects, features: features, tasks: tasks}
}

func (r *entityReader) GetState(ctx context.Context, containerType models.ContainerType, id uuid.UUID) (EntityState, error) {
	switch containerType {
	case models.ContainerProject:
		project, err := r.projects.Get(ctx, id)
		if err != nil {
			return EntityState{}, err
		}
		return EntityState{
			Title:  project.Name,
			Status: models.NormalizeStatus(project.Status),
			Tags:   project.Tags,
		}, nil
	case models.ContainerFeature:
		feature, err := r.features.Get(ctx, id)
		if err != nil {
			return EntityState{}, err
		}
		return EntityState{
			Title:                feature.Name,
			Status:               models.NormalizeStatus(feature.Status),
			Tags:                 feature.Tags,
			RequiresVerification: feature.RequiresVerification,
		}, nil
	case models.ContainerTask:
		task, err := r.tasks.Get(ctx, id)
		if err != nil {
			return EntityState{}, err
		}
		return EntityState{
			Title:                task.Title,
			Status:               models.NormalizeStatus(task.Status),
			Tags:                 task.Tags,
			RequiresVerification: task.RequiresVerification,
		}, nil
	default:
		return EntityState{}, fmt.Errorf("unknown container type %q", containerType)
	}
}
