package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/apperrors"
	"github.com/taskorchestrator/engine/pkg/config"
	"github.com/taskorchestrator/engine/pkg/models"
)

// stubFlows satisfies WorkflowSource with a fixed config. A nil config
// exercises V1-compatibility mode.
type stubFlows struct {
	cfg *config.WorkflowConfig
}

func (s stubFlows) Active() *config.WorkflowConfig { return s.cfg }

func defaultFlows() stubFlows {
	return stubFlows{cfg: config.DefaultWorkflowConfig()}
}

// mockProjectRepo is a map-backed in-memory ProjectRepository.
type mockProjectRepo struct {
	projects map[uuid.UUID]*models.Project
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{projects: make(map[uuid.UUID]*models.Project)}
}

func (m *mockProjectRepo) put(p *models.Project) *models.Project {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	cp := *p
	m.projects[p.ID] = &cp
	return p
}

func (m *mockProjectRepo) Create(_ context.Context, p *models.Project) error {
	m.put(p)
	return nil
}

func (m *mockProjectRepo) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepo) Update(_ context.Context, p *models.Project) error {
	stored, ok := m.projects[p.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Version != p.Version {
		return apperrors.ErrVersionConflict
	}
	p.Version++
	p.ModifiedAt = time.Now()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.projects[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

// mockFeatureRepo is a map-backed in-memory FeatureRepository.
type mockFeatureRepo struct {
	features map[uuid.UUID]*models.Feature
}

func newMockFeatureRepo() *mockFeatureRepo {
	return &mockFeatureRepo{features: make(map[uuid.UUID]*models.Feature)}
}

func (m *mockFeatureRepo) put(f *models.Feature) *models.Feature {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Version == 0 {
		f.Version = 1
	}
	cp := *f
	m.features[f.ID] = &cp
	return f
}

func (m *mockFeatureRepo) Create(_ context.Context, f *models.Feature) error {
	m.put(f)
	return nil
}

func (m *mockFeatureRepo) Get(_ context.Context, id uuid.UUID) (*models.Feature, error) {
	f, ok := m.features[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFeatureRepo) Update(_ context.Context, f *models.Feature) error {
	stored, ok := m.features[f.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Version != f.Version {
		return apperrors.ErrVersionConflict
	}
	f.Version++
	f.ModifiedAt = time.Now()
	cp := *f
	m.features[f.ID] = &cp
	return nil
}

func (m *mockFeatureRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.features[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.features, id)
	return nil
}

func (m *mockFeatureRepo) FindByProject(_ context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	var out []*models.Feature
	for _, f := range m.features {
		if f.ProjectID != nil && *f.ProjectID == projectID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockFeatureRepo) CountsByProject(_ context.Context, projectID uuid.UUID) (models.StatusCounts, error) {
	counts := models.StatusCounts{ByStatus: make(map[string]int)}
	for _, f := range m.features {
		if f.ProjectID != nil && *f.ProjectID == projectID {
			counts.Total++
			counts.ByStatus[models.NormalizeStatus(f.Status)]++
		}
	}
	return counts, nil
}

// mockTaskRepo is a map-backed in-memory TaskRepository.
type mockTaskRepo struct {
	tasks map[uuid.UUID]*models.Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *mockTaskRepo) put(t *models.Task) *models.Task {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return t
}

func (m *mockTaskRepo) Create(_ context.Context, t *models.Task) error {
	m.put(t)
	return nil
}

func (m *mockTaskRepo) Get(_ context.Context, id uuid.UUID) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) Update(_ context.Context, t *models.Task) error {
	stored, ok := m.tasks[t.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Version != t.Version {
		return apperrors.ErrVersionConflict
	}
	t.Version++
	t.ModifiedAt = time.Now()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskRepo) FindByProject(_ context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range m.tasks {
		if t.ProjectID != nil && *t.ProjectID == projectID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) FindByFeature(_ context.Context, featureID uuid.UUID) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range m.tasks {
		if t.FeatureID != nil && *t.FeatureID == featureID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) CountByFeature(_ context.Context, featureID uuid.UUID) (int, error) {
	n := 0
	for _, t := range m.tasks {
		if t.FeatureID != nil && *t.FeatureID == featureID {
			n++
		}
	}
	return n, nil
}

func (m *mockTaskRepo) CountsByFeature(_ context.Context, featureID uuid.UUID) (models.StatusCounts, error) {
	counts := models.StatusCounts{ByStatus: make(map[string]int)}
	for _, t := range m.tasks {
		if t.FeatureID != nil && *t.FeatureID == featureID {
			counts.Total++
			counts.ByStatus[models.NormalizeStatus(t.Status)]++
		}
	}
	return counts, nil
}

// mockSectionRepo is a map-backed in-memory SectionRepository.
type mockSectionRepo struct {
	sections map[uuid.UUID]*models.Section
}

func newMockSectionRepo() *mockSectionRepo {
	return &mockSectionRepo{sections: make(map[uuid.UUID]*models.Section)}
}

func (m *mockSectionRepo) put(s *models.Section) *models.Section {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.sections[s.ID] = &cp
	return s
}

func (m *mockSectionRepo) Create(_ context.Context, s *models.Section) error {
	m.put(s)
	return nil
}

func (m *mockSectionRepo) Get(_ context.Context, id uuid.UUID) (*models.Section, error) {
	s, ok := m.sections[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSectionRepo) Update(_ context.Context, s *models.Section) error {
	if _, ok := m.sections[s.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *s
	m.sections[s.ID] = &cp
	return nil
}

func (m *mockSectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.sections[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.sections, id)
	return nil
}

func (m *mockSectionRepo) FindByEntity(_ context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.Section, error) {
	var out []*models.Section
	for _, s := range m.sections {
		if s.EntityType == entityType && s.EntityID == entityID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSectionRepo) GetByTitle(_ context.Context, entityType models.ContainerType, entityID uuid.UUID, title string) (*models.Section, error) {
	for _, s := range m.sections {
		if s.EntityType == entityType && s.EntityID == entityID && s.Title == title {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// mockDependencyRepo is a map-backed in-memory DependencyRepository.
type mockDependencyRepo struct {
	deps map[uuid.UUID]*models.Dependency
}

func newMockDependencyRepo() *mockDependencyRepo {
	return &mockDependencyRepo{deps: make(map[uuid.UUID]*models.Dependency)}
}

func (m *mockDependencyRepo) put(d *models.Dependency) *models.Dependency {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.deps[d.ID] = &cp
	return d
}

func (m *mockDependencyRepo) Create(_ context.Context, d *models.Dependency) error {
	if d.FromTaskID == d.ToTaskID {
		return apperrors.ErrValidation
	}
	m.put(d)
	return nil
}

func (m *mockDependencyRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.deps[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.deps, id)
	return nil
}

func (m *mockDependencyRepo) FindByFromTaskID(_ context.Context, taskID uuid.UUID) ([]*models.Dependency, error) {
	var out []*models.Dependency
	for _, d := range m.deps {
		if d.FromTaskID == taskID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDependencyRepo) FindByToTaskID(_ context.Context, taskID uuid.UUID) ([]*models.Dependency, error) {
	var out []*models.Dependency
	for _, d := range m.deps {
		if d.ToTaskID == taskID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDependencyRepo) DeleteByTaskID(_ context.Context, taskID uuid.UUID) error {
	for id, d := range m.deps {
		if d.FromTaskID == taskID || d.ToTaskID == taskID {
			delete(m.deps, id)
		}
	}
	return nil
}

// mockRoleTransitionRepo records audit rows in order.
type mockRoleTransitionRepo struct {
	rows []*models.RoleTransition
}

func newMockRoleTransitionRepo() *mockRoleTransitionRepo {
	return &mockRoleTransitionRepo{}
}

func (m *mockRoleTransitionRepo) Record(_ context.Context, rt *models.RoleTransition) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	rt.CreatedAt = time.Now()
	cp := *rt
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockRoleTransitionRepo) FindByEntity(_ context.Context, entityType models.ContainerType, entityID uuid.UUID) ([]*models.RoleTransition, error) {
	var out []*models.RoleTransition
	for _, rt := range m.rows {
		if rt.EntityType == entityType && rt.EntityID == entityID {
			cp := *rt
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fixture bundles a fully wired engine over the in-memory mocks.
type fixture struct {
	flows       stubFlows
	projects    *mockProjectRepo
	features    *mockFeatureRepo
	tasks       *mockTaskRepo
	sections    *mockSectionRepo
	deps        *mockDependencyRepo
	audit       *mockRoleTransitionRepo
	validator   StatusValidator
	progression StatusProgressionService
	gate        VerificationGate
	cascades    CascadeService
	orch        TransitionOrchestrator
}

func newFixture(cfg *config.WorkflowConfig) *fixture {
	f := &fixture{
		flows:    stubFlows{cfg: cfg},
		projects: newMockProjectRepo(),
		features: newMockFeatureRepo(),
		tasks:    newMockTaskRepo(),
		sections: newMockSectionRepo(),
		deps:     newMockDependencyRepo(),
		audit:    newMockRoleTransitionRepo(),
	}
	logger := zap.NewNop()
	f.validator = NewStatusValidator(f.flows, f.tasks, f.features, f.deps, logger)
	f.progression = NewStatusProgressionService(f.flows, f.validator, f.tasks, f.deps, logger)
	f.gate = NewVerificationGate(f.sections, logger)
	f.cascades = NewCascadeService(f.flows, f.validator, f.progression, f.gate, f.projects, f.features, f.tasks, f.deps, logger)
	f.orch = NewTransitionOrchestrator(f.flows, f.validator, f.progression, f.gate, f.cascades,
		f.projects, f.features, f.tasks, f.audit, logger)
	return f
}

func validSummary() string {
	s := make([]byte, 350)
	for i := range s {
		s[i] = 'a'
	}
	return string(s)
}
