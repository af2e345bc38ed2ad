// Project HTTP handlers.
//
// This file exposes REST endpoints for project resources:
//   - POST   /projects               (create)
//   - GET    /projects               (list, paginated, sortable)
//   - GET    /projects/{id}          (read, optional ?join=tasks)
//   - PUT    /projects/{id}          (partial update, optimistic concurrency)
//   - DELETE /projects/{id}          (delete with tasks)
//   - POST   /projects/{id}/tasks    (add task)
//   - GET    /projects/{id}/tasks    (list tasks)
//
// Handlers are transport-thin: they validate input, bind the service to the
// request transaction, and translate results into envelopes.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/domain"
	"github.com/tbourn/go-service-shell/internal/http/middleware"
	"github.com/tbourn/go-service-shell/internal/repo"
	"github.com/tbourn/go-service-shell/internal/services"
	"github.com/tbourn/go-service-shell/internal/utils"
	"github.com/tbourn/go-service-shell/internal/validation"
)

//
// Service contracts (context-aware)
//

// ProjectService defines project and task operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type ProjectService interface {
	// Create inserts a project owned by actor.
	Create(ctx context.Context, actor string, in services.CreateProjectInput) (*domain.Project, error)
	// List returns a page of projects and the total count.
	List(ctx context.Context, page repo.Page, sort repo.Sort) ([]domain.Project, int64, error)
	// Get returns one project or RESOURCE_NOT_FOUND.
	Get(ctx context.Context, id string, joins repo.JoinSet) (*domain.Project, error)
	// Update applies a partial update guarded by the concurrency token.
	Update(ctx context.Context, actor, id string, in services.UpdateProjectInput) (*domain.Project, error)
	// Delete removes a project and its tasks.
	Delete(ctx context.Context, id string) error
	// AddTask creates a task in a project.
	AddTask(ctx context.Context, actor, projectID, title string) (*domain.Task, error)
	// ListTasks returns the tasks of a project.
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
}

// Binder returns the service bound to the request transaction.
type Binder func(tx *gorm.DB) ProjectService

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	projects Binder
	cfg      config.Config
}

// New constructs Handlers on top of svc.
func New(svc *services.ProjectService, cfg config.Config) *Handlers {
	return NewWithBinder(func(tx *gorm.DB) ProjectService { return svc.With(tx) }, cfg)
}

// NewWithBinder constructs Handlers with a custom service binder.
func NewWithBinder(b Binder, cfg config.Config) *Handlers {
	return &Handlers{projects: b, cfg: cfg}
}

// service binds the project service to the current request's transaction.
func (h *Handlers) service(c *gin.Context) ProjectService {
	return h.projects(middleware.DB(c))
}

// actor is the preferred_username of the authenticated caller.
func actor(c *gin.Context) string {
	id, _ := middleware.IdentityFrom(c)
	return id.Email
}

//
// DTOs
//

// CreateProjectRequest is the JSON payload for creating a project.
type CreateProjectRequest struct {
	// Name is the display name (3–100 chars).
	Name string `json:"name" example:"Website relaunch"`
	// Description is optional free text (up to 500 chars).
	Description string `json:"description" example:"Everything for the Q3 launch"`
}

// UpdateProjectRequest is the JSON payload for a partial project update.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" example:"Website relaunch v2"`
	Description *string `json:"description,omitempty"`
	// UpdatedAt is the updated_at value of the version being edited.
	UpdatedAt *string `json:"updated_at" example:"2025-03-04 05:06:07"`
}

// CreateTaskRequest is the JSON payload for adding a task.
type CreateTaskRequest struct {
	Title string `json:"title" example:"Draft landing page"`
}

// ProjectPage wraps a page of projects.
type ProjectPage struct {
	Items []domain.Project `json:"items"`
	Total int64            `json:"total"`
	Skip  int              `json:"skip"`
	Limit int              `json:"limit"`
}

const (
	nameMinLen        = 3
	nameMaxLen        = 100
	descriptionMaxLen = 500
	titleMaxLen       = 255
)

// joinsFrom reads repeated or comma-separated ?join= values.
func joinsFrom(c *gin.Context) (repo.JoinSet, error) {
	var names []string
	for _, v := range c.QueryArray("join") {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return repo.NewJoinSet(names...)
}

//
// Handlers
//

// CreateProject godoc
// @ID          createProject
// @Summary     Create a project
// @Description Creates a project owned by the caller.
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateProjectRequest  true  "Create project payload"
// @Success     200   {object}  response.Envelope
// @Router      /projects [post]
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.BadRequest(err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if errs := validation.Collect(
		validation.String("name", req.Name).Required().MinLength(nameMinLen).MaxLength(nameMaxLen),
		validation.String("description", req.Description).MaxLength(descriptionMaxLen),
	); len(errs) > 0 {
		invalid(c, errs)
		return
	}

	p, err := h.service(c).Create(c.Request.Context(), actor(c), services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// ListProjects godoc
// @ID          listProjects
// @Summary     List projects (paginated)
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       skip       query     int     false  "Rows to skip"     default(0)
// @Param       limit      query     int     false  "Page size"        default(20)
// @Param       sort_by    query     string  false  "Sort field"       example(name)
// @Param       sort_desc  query     bool    false  "Descending order"
// @Success     200        {object}  response.Envelope
// @Router      /projects [get]
func (h *Handlers) ListProjects(c *gin.Context) {
	page := repo.Page{
		Skip:  utils.AtoiDefault(c.Query("skip"), 0),
		Limit: utils.AtoiDefault(c.Query("limit"), services.DefaultPageSize),
	}
	sort := repo.Sort{
		Field: c.Query("sort_by"),
		Desc:  utils.BoolDefault(c.Query("sort_desc"), false),
	}

	items, total, err := h.service(c).List(c.Request.Context(), page, sort)
	if err != nil {
		fail(c, err)
		return
	}
	page = services.ClampPage(page)
	ok(c, ProjectPage{Items: items, Total: total, Skip: page.Skip, Limit: page.Limit})
}

// GetProject godoc
// @ID          getProject
// @Summary     Get a project
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string  true   "Project ID"
// @Param       join  query     string  false  "Relations to load"  example(tasks)
// @Success     200   {object}  response.Envelope
// @Router      /projects/{id} [get]
func (h *Handlers) GetProject(c *gin.Context) {
	joins, err := joinsFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := h.service(c).Get(c.Request.Context(), c.Param("id"), joins)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// UpdateProject godoc
// @ID          updateProject
// @Summary     Update a project
// @Description Partial update. updated_at must equal the stored value, otherwise CONCURRENCY_CONFLICT_ERROR.
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                         true  "Project ID"
// @Param       body  body      handlers.UpdateProjectRequest  true  "Update payload"
// @Success     200   {object}  response.Envelope
// @Router      /projects/{id} [put]
func (h *Handlers) UpdateProject(c *gin.Context) {
	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.BadRequest(err))
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	checks := []validation.Validator{
		validation.OptionalString("updated_at", req.UpdatedAt).Required(),
		validation.OptionalString("description", req.Description).MaxLength(descriptionMaxLen),
	}
	if req.Name != nil {
		checks = append(checks, validation.OptionalString("name", req.Name).Required().MinLength(nameMinLen).MaxLength(nameMaxLen))
	}
	if errs := validation.Collect(checks...); len(errs) > 0 {
		invalid(c, errs)
		return
	}

	p, err := h.service(c).Update(c.Request.Context(), actor(c), c.Param("id"), services.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		UpdatedAt:   *req.UpdatedAt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// DeleteProject godoc
// @ID          deleteProject
// @Summary     Delete a project and its tasks
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  response.Envelope
// @Router      /projects/{id} [delete]
func (h *Handlers) DeleteProject(c *gin.Context) {
	id := c.Param("id")
	if err := h.service(c).Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

// CreateTask godoc
// @ID          createTask
// @Summary     Add a task to a project
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                      true  "Project ID"
// @Param       body  body      handlers.CreateTaskRequest  true  "Task payload"
// @Success     200   {object}  response.Envelope
// @Router      /projects/{id}/tasks [post]
func (h *Handlers) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.BadRequest(err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if errs := validation.String("title", req.Title).Required().MaxLength(titleMaxLen).Errors(); len(errs) > 0 {
		invalid(c, errs)
		return
	}

	t, err := h.service(c).AddTask(c.Request.Context(), actor(c), c.Param("id"), req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

// ListTasks godoc
// @ID          listTasks
// @Summary     List the tasks of a project
// @Tags        Tasks
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  response.Envelope
// @Router      /projects/{id}/tasks [get]
func (h *Handlers) ListTasks(c *gin.Context) {
	tasks, err := h.service(c).ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, tasks)
}
