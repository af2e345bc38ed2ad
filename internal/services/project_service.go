// Package services – ProjectService
//
// This file implements ProjectService, the application-level component behind
// the project and task endpoints. It normalizes input, fills audit columns
// from the calling identity, enforces the optimistic-concurrency check on
// updates, and delegates persistence to the generic repositories.
//
// A ProjectService is built once on the root database handle; handlers bind
// it to the request transaction with With before calling any method, so all
// writes of a request commit or roll back together.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/domain"
	"github.com/tbourn/go-service-shell/internal/repo"
)

const (
	// DefaultPageSize is used when a listing does not ask for a limit.
	DefaultPageSize = 20
	// MaxPageSize caps the number of rows returned by one listing.
	MaxPageSize = 100
)

// Join names accepted by the project and task repositories.
const (
	JoinTasks   = "tasks"
	JoinProject = "project"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// ProjectService coordinates project and task persistence.
type ProjectService struct {
	projects *repo.Repository[domain.Project]
	tasks    *repo.Repository[domain.Task]
}

// CreateProjectInput carries the client-supplied fields of a new project.
type CreateProjectInput struct {
	Name        string
	Description string
}

// UpdateProjectInput is a partial update. Nil fields are left untouched.
// UpdatedAt is the concurrency token the client last saw; it may be a
// time.Time or a timestamp string.
type UpdateProjectInput struct {
	Name        *string
	Description *string
	UpdatedAt   any
}

// NewProjectService builds the repositories and their join tables.
func NewProjectService(db *gorm.DB) (*ProjectService, error) {
	projects, err := repo.New[domain.Project](db, map[string]repo.JoinFunc{
		JoinTasks: func(q *gorm.DB) *gorm.DB {
			return q.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
				return tx.Order("created_at, id")
			})
		},
	})
	if err != nil {
		return nil, err
	}
	tasks, err := repo.New[domain.Task](db, map[string]repo.JoinFunc{
		JoinProject: func(q *gorm.DB) *gorm.DB { return q.Joins("Project") },
	})
	if err != nil {
		return nil, err
	}
	return &ProjectService{projects: projects, tasks: tasks}, nil
}

// With returns a copy of the service bound to tx.
func (s *ProjectService) With(tx *gorm.DB) *ProjectService {
	return &ProjectService{
		projects: s.projects.WithDB(tx),
		tasks:    s.tasks.WithDB(tx),
	}
}

// Create inserts a project owned by actor.
func (s *ProjectService) Create(ctx context.Context, actor string, in CreateProjectInput) (*domain.Project, error) {
	ctx, span := startSpan(ctx, "Create", attribute.String("user.id", actor))
	defer span.End()

	return s.projects.Create(ctx, map[string]any{
		"name":        normalizeName(in.Name),
		"description": strings.TrimSpace(in.Description),
		"owner":       actor,
		"created_by":  actor,
		"updated_by":  actor,
	})
}

// List returns one page of projects and the total number of projects.
func (s *ProjectService) List(ctx context.Context, page repo.Page, sort repo.Sort) ([]domain.Project, int64, error) {
	page = ClampPage(page)
	ctx, span := startSpan(ctx, "List",
		attribute.Int("page.skip", page.Skip),
		attribute.Int("page.limit", page.Limit),
		attribute.String("sort.field", sort.Field),
	)
	defer span.End()

	total, err := s.projects.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Project{}, 0, nil
	}
	items, err := s.projects.GetAll(ctx, page, nil, sort)
	return items, total, err
}

// Get returns the project with id, or RESOURCE_NOT_FOUND.
func (s *ProjectService) Get(ctx context.Context, id string, joins repo.JoinSet) (*domain.Project, error) {
	ctx, span := startSpan(ctx, "Get", attribute.String("project.id", id))
	defer span.End()

	p, err := s.projects.GetByID(ctx, id, joins)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ResourceNotFound()
	}
	return p, nil
}

// Update applies in to the project after checking that the client saw the
// latest version.
func (s *ProjectService) Update(ctx context.Context, actor, id string, in UpdateProjectInput) (*domain.Project, error) {
	ctx, span := startSpan(ctx, "Update",
		attribute.String("project.id", id),
		attribute.String("user.id", actor),
	)
	defer span.End()

	cur, err := s.projects.GetByID(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if err := repo.CheckConcurrency(cur, in.UpdatedAt); err != nil {
		return nil, err
	}

	data := map[string]any{"updated_by": actor}
	if in.Name != nil {
		data["name"] = normalizeName(*in.Name)
	}
	if in.Description != nil {
		data["description"] = strings.TrimSpace(*in.Description)
	}
	return s.projects.Update(ctx, id, data, nil)
}

// Delete removes the project and, through the foreign key, its tasks.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "Delete", attribute.String("project.id", id))
	defer span.End()

	return s.projects.DeleteByID(ctx, id)
}

// AddTask creates a task inside an existing project.
func (s *ProjectService) AddTask(ctx context.Context, actor, projectID, title string) (*domain.Task, error) {
	ctx, span := startSpan(ctx, "AddTask",
		attribute.String("project.id", projectID),
		attribute.String("user.id", actor),
	)
	defer span.End()

	if _, err := s.Get(ctx, projectID, nil); err != nil {
		return nil, err
	}
	return s.tasks.Create(ctx, map[string]any{
		"project_id": projectID,
		"title":      normalizeName(title),
		"created_by": actor,
		"updated_by": actor,
	})
}

// ListTasks returns the tasks of a project.
func (s *ProjectService) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	ctx, span := startSpan(ctx, "ListTasks", attribute.String("project.id", projectID))
	defer span.End()

	if _, err := s.Get(ctx, projectID, nil); err != nil {
		return nil, err
	}
	return s.tasks.GetByField(ctx, "project_id", projectID, nil)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/ProjectService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// ClampPage applies the default and maximum page sizes and drops a
// negative skip.
func ClampPage(p repo.Page) repo.Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageSize
	case p.Limit > MaxPageSize:
		p.Limit = MaxPageSize
	}
	return p
}

// normalizeName trims whitespace and collapses inner runs to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}
