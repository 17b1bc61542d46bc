package repositories_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
	"github.com/taskorchestrator/engine/pkg/testhelpers"
)

func TestProjectRepositoryRoundTrip(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	repo := repositories.NewProjectRepository(db.DB)
	ctx := context.Background()

	project := &models.Project{
		Name:    "Payments revamp",
		Summary: "Replace the legacy payment flow",
		Tags:    []string{"backend", "q3"},
	}
	require.NoError(t, repo.Create(ctx, project))
	require.NotEqual(t, uuid.Nil, project.ID)

	loaded, err := repo.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Payments revamp", loaded.Name)
	assert.Equal(t, models.StatusPlanning, loaded.Status)
	assert.ElementsMatch(t, []string{"backend", "q3"}, loaded.Tags)
	assert.EqualValues(t, 1, loaded.Version)

	loaded.Status = models.StatusInDevelopment
	loaded.Tags = []string{"backend"}
	require.NoError(t, repo.Update(ctx, loaded))
	assert.EqualValues(t, 2, loaded.Version, "update bumps the version in place")

	reloaded, err := repo.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInDevelopment, reloaded.Status)
	assert.Equal(t, []string{"backend"}, reloaded.Tags)

	require.NoError(t, repo.Delete(ctx, project.ID))
	_, err = repo.Get(ctx, project.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTaskRepositoryDefaults(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	repo := repositories.NewTaskRepository(db.DB)
	ctx := context.Background()

	task := &models.Task{Title: "Add retry loop"}
	require.NoError(t, repo.Create(ctx, task))

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, loaded.Status)
	assert.Equal(t, models.PriorityMedium, loaded.Priority)
	assert.Equal(t, 5, loaded.Complexity)
	assert.False(t, loaded.RequiresVerification)
}

func TestTaskRepositoryOptimisticLocking(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	repo := repositories.NewTaskRepository(db.DB)
	ctx := context.Background()

	task := &models.Task{Title: "Migrate schema", Status: models.StatusPending}
	require.NoError(t, repo.Create(ctx, task))

	first, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	second, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)

	first.Status = models.StatusInProgress
	require.NoError(t, repo.Update(ctx, first))

	// The second copy still carries the old version.
	second.Status = models.StatusCancelled
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, loaded.Status)

	// A vanished row reports not found rather than a conflict.
	require.NoError(t, repo.Delete(ctx, task.ID))
	first.Status = models.StatusCompleted
	assert.ErrorIs(t, repo.Update(ctx, first), apperrors.ErrNotFound)
}

func TestTaskRepositoryStatusNormalization(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	repo := repositories.NewTaskRepository(db.DB)
	ctx := context.Background()

	task := &models.Task{Title: "Normalize me", Status: "IN_PROGRESS"}
	require.NoError(t, repo.Create(ctx, task))

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, loaded.Status)
}

func TestTaskCountsByFeature(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	features := repositories.NewFeatureRepository(db.DB)
	tasks := repositories.NewTaskRepository(db.DB)
	ctx := context.Background()

	feature := &models.Feature{Name: "Search"}
	require.NoError(t, features.Create(ctx, feature))

	for _, status := range []string{
		models.StatusCompleted, models.StatusCompleted, models.StatusInProgress,
	} {
		task := &models.Task{Title: "t-" + status, FeatureID: &feature.ID, Status: status}
		require.NoError(t, tasks.Create(ctx, task))
	}

	counts, err := tasks.CountsByFeature(ctx, feature.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.ByStatus[models.StatusCompleted])
	assert.Equal(t, 1, counts.ByStatus[models.StatusInProgress])

	total, err := tasks.CountByFeature(ctx, feature.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestFeatureCountsByProject(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	projects := repositories.NewProjectRepository(db.DB)
	features := repositories.NewFeatureRepository(db.DB)
	ctx := context.Background()

	project := &models.Project{Name: "Platform"}
	require.NoError(t, projects.Create(ctx, project))

	for _, status := range []string{models.StatusCompleted, models.StatusPlanning} {
		feature := &models.Feature{Name: "f-" + status, ProjectID: &project.ID, Status: status}
		require.NoError(t, features.Create(ctx, feature))
	}

	counts, err := features.CountsByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.ByStatus[models.StatusCompleted])

	listed, err := features.FindByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSectionRepositoryGetByTitle(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	tasks := repositories.NewTaskRepository(db.DB)
	sections := repositories.NewSectionRepository(db.DB)
	ctx := context.Background()

	task := &models.Task{Title: "Verified work"}
	require.NoError(t, tasks.Create(ctx, task))

	section := &models.Section{
		EntityType:    models.ContainerTask,
		EntityID:      task.ID,
		Title:         models.VerificationSectionTitle,
		Content:       `[{"criteria":"unit tests pass","pass":true}]`,
		ContentFormat: models.FormatJSON,
	}
	require.NoError(t, sections.Create(ctx, section))

	loaded, err := sections.GetByTitle(ctx, models.ContainerTask, task.ID, models.VerificationSectionTitle)
	require.NoError(t, err)
	assert.Equal(t, section.ID, loaded.ID)
	assert.Equal(t, models.FormatJSON, loaded.ContentFormat)

	_, err = sections.GetByTitle(ctx, models.ContainerTask, task.ID, "Notes")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Deleting the task removes its sections.
	require.NoError(t, tasks.Delete(ctx, task.ID))
	_, err = sections.Get(ctx, section.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDependencyRepositoryEdges(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	tasks := repositories.NewTaskRepository(db.DB)
	deps := repositories.NewDependencyRepository(db.DB)
	ctx := context.Background()

	a := &models.Task{Title: "A"}
	b := &models.Task{Title: "B"}
	require.NoError(t, tasks.Create(ctx, a))
	require.NoError(t, tasks.Create(ctx, b))

	edge := &models.Dependency{FromTaskID: a.ID, ToTaskID: b.ID, Type: models.DependencyBlocks}
	require.NoError(t, deps.Create(ctx, edge))

	outgoing, err := deps.FindByFromTaskID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, b.ID, outgoing[0].ToTaskID)

	incoming, err := deps.FindByToTaskID(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, models.DependencyBlocks, incoming[0].Type)

	// Self-loops are rejected before touching the database.
	err = deps.Create(ctx, &models.Dependency{FromTaskID: a.ID, ToTaskID: a.ID, Type: models.DependencyBlocks})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Duplicate (from, to, type) violates the unique edge constraint.
	err = deps.Create(ctx, &models.Dependency{FromTaskID: a.ID, ToTaskID: b.ID, Type: models.DependencyBlocks})
	assert.Error(t, err)

	require.NoError(t, deps.DeleteByTaskID(ctx, a.ID))
	outgoing, err = deps.FindByFromTaskID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
}

func TestRoleTransitionRepositoryRecord(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	tasks := repositories.NewTaskRepository(db.DB)
	audit := repositories.NewRoleTransitionRepository(db.DB)
	ctx := context.Background()

	task := &models.Task{Title: "Audited"}
	require.NoError(t, tasks.Create(ctx, task))

	fromRole := string(models.RoleQueue)
	toRole := string(models.RoleWork)
	require.NoError(t, audit.Record(ctx, &models.RoleTransition{
		EntityType: models.ContainerTask,
		EntityID:   task.ID,
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusInProgress,
		FromRole:   &fromRole,
		ToRole:     &toRole,
		Trigger:    "start",
	}))

	rows, err := audit.FindByEntity(ctx, models.ContainerTask, task.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusPending, rows[0].FromStatus)
	assert.Equal(t, models.StatusInProgress, rows[0].ToStatus)
	require.NotNil(t, rows[0].ToRole)
	assert.Equal(t, string(models.RoleWork), *rows[0].ToRole)
	assert.Equal(t, "start", rows[0].Trigger)
}
