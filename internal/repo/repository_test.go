package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/domain"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano())) +
		"?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if migrate {
		require.NoError(t, AutoMigrate(db))
	}
	return db
}

func projectJoins() map[string]JoinFunc {
	return map[string]JoinFunc{
		"tasks": func(db *gorm.DB) *gorm.DB { return db.Preload("Tasks") },
		// fan-out join: one row per task, collapsed by dedupe
		"task_rows": func(db *gorm.DB) *gorm.DB {
			return db.Joins("JOIN tasks ON tasks.project_id = projects.id")
		},
	}
}

func newProjects(t *testing.T, db *gorm.DB) *Repository[domain.Project] {
	t.Helper()
	r, err := New[domain.Project](db, projectJoins())
	require.NoError(t, err)
	r.now = func() time.Time { return fixedNow }
	return r
}

func newTasks(t *testing.T, db *gorm.DB) *Repository[domain.Task] {
	t.Helper()
	r, err := New[domain.Task](db, map[string]JoinFunc{
		"project": func(db *gorm.DB) *gorm.DB { return db.Joins("Project") },
	})
	require.NoError(t, err)
	r.now = func() time.Time { return fixedNow }
	return r
}

func mustCreate(t *testing.T, r *Repository[domain.Project], name, owner string) *domain.Project {
	t.Helper()
	p, err := r.Create(context.Background(), map[string]any{"name": name, "owner": owner, "created_by": owner})
	require.NoError(t, err)
	return p
}

func TestNew_ValidatesConstruction(t *testing.T) {
	db := newRepoDB(t, false)

	_, err := New[domain.Project](nil, nil)
	assert.Error(t, err)

	_, err = New[domain.Project](db, map[string]JoinFunc{"tasks": nil})
	assert.Error(t, err)

	_, err = New[domain.Project](db, map[string]JoinFunc{"": func(db *gorm.DB) *gorm.DB { return db }})
	assert.Error(t, err)

	r, err := New[domain.Project](db, nil)
	require.NoError(t, err)
	assert.Same(t, db, r.db)

	other := newRepoDB(t, false)
	assert.Same(t, other, r.WithDB(other).db)
	assert.Same(t, db, r.db, "WithDB must not mutate the original")
}

func TestCreate_AssignsIDAndTimestamps(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()

	p := mustCreate(t, r, "alpha", "u1")
	assert.Len(t, p.ID, 36)
	assert.True(t, p.CreatedAt.Equal(fixedNow))
	assert.True(t, p.UpdatedAt.Equal(fixedNow))
	assert.Equal(t, "u1", p.CreatedBy)

	got, err := r.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alpha", got.Name)
	assert.True(t, got.UpdatedAt.Equal(fixedNow), "stored %v", got.UpdatedAt)
}

func TestCreate_RejectsUnknownAndManagedFields(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()

	for _, attrs := range []map[string]any{
		{"name": "x", "nope": 1},
		{"name": "x", "updated_at": fixedNow},
		{"name": "x", "tasks": nil},
	} {
		_, err := r.Create(ctx, attrs)
		assert.ErrorIs(t, err, apperr.InvalidField(""), "attrs %v", attrs)
	}

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreate_DatabaseFailureIsTagged(t *testing.T) {
	r := newProjects(t, newRepoDB(t, false)) // no tables

	_, err := r.Create(context.Background(), map[string]any{"name": "x"})
	require.Error(t, err)
	assert.True(t, IsDatabaseError(err))
	assert.False(t, IsDatabaseError(apperr.ResourceNotFound()))
}

func TestGetByID_AbsentIsNilNotError(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))

	got, err := r.GetByID(context.Background(), "missing", nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	p := mustCreate(t, r, "alpha", "u1")
	got, err = r.GetByID(context.Background(), "alpha", nil, "name")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	_, err = r.GetByID(context.Background(), "x", nil, "bogus")
	assert.ErrorIs(t, err, apperr.InvalidField(""))
}

func TestGetAll_SortAndPage(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()
	for _, n := range []string{"charlie", "alpha", "bravo"} {
		mustCreate(t, r, n, "u1")
	}

	names := func(ps []domain.Project) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}

	all, err := r.GetAll(ctx, Page{}, nil, Sort{Field: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(all))

	desc, err := r.GetAll(ctx, Page{}, nil, Sort{Field: "name", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "bravo", "alpha"}, names(desc))

	page, err := r.GetAll(ctx, Page{Skip: 1, Limit: 1}, nil, Sort{Field: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo"}, names(page))

	// unknown sort field is ignored
	unsorted, err := r.GetAll(ctx, Page{}, nil, Sort{Field: "no_such_column"})
	require.NoError(t, err)
	assert.Len(t, unsorted, 3)

	empty, err := r.GetAll(ctx, Page{Skip: 10}, nil, Sort{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJoins_LoadValidateAndDedupe(t *testing.T) {
	db := newRepoDB(t, true)
	projects := newProjects(t, db)
	tasks := newTasks(t, db)
	ctx := context.Background()

	p := mustCreate(t, projects, "alpha", "u1")
	for _, title := range []string{"one", "two"} {
		_, err := tasks.Create(ctx, map[string]any{"project_id": p.ID, "title": title})
		require.NoError(t, err)
	}

	joins, err := NewJoinSet("tasks")
	require.NoError(t, err)
	got, err := projects.GetByID(ctx, p.ID, joins)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 2)

	plain, err := projects.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, plain.Tasks)

	fanout, err := projects.GetAll(ctx, Page{}, JoinSet{"task_rows"}, Sort{})
	require.NoError(t, err)
	assert.Len(t, fanout, 1, "rows multiplied by a join collapse to one entity")

	withProject, err := tasks.GetByField(ctx, "project_id", p.ID, JoinSet{"project"})
	require.NoError(t, err)
	require.Len(t, withProject, 2)
	require.NotNil(t, withProject[0].Project)
	assert.Equal(t, "alpha", withProject[0].Project.Name)

	_, err = projects.GetByID(ctx, p.ID, JoinSet{"owner"})
	assert.ErrorIs(t, err, ErrUnknownJoin)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidJoin, ae.Code)

	_, err = NewJoinSet("tasks", "tasks")
	assert.ErrorIs(t, err, ErrDuplicateJoin)
	_, err = projects.GetAll(ctx, Page{}, JoinSet{"tasks", "tasks"}, Sort{})
	assert.ErrorIs(t, err, ErrDuplicateJoin)
}

func TestFieldQueries(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()
	mustCreate(t, r, "alpha", "u1")
	mustCreate(t, r, "alpine", "u1")
	mustCreate(t, r, "bravo", "u2")

	byOwner, err := r.GetByField(ctx, "owner", "u1", nil)
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	one, err := r.GetOneByField(ctx, "owner", "u2", nil)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "bravo", one.Name)

	none, err := r.GetOneByField(ctx, "owner", "u9", nil)
	assert.NoError(t, err)
	assert.Nil(t, none)

	_, err = r.GetOneByField(ctx, "owner", "u1", nil)
	assert.ErrorIs(t, err, apperr.MultipleResultsFound())

	got, err := r.GetByMultiField(ctx, []Condition{
		{Field: "owner", Op: OpEq, Value: "u1"},
		{Field: "name", Op: OpLike, Value: "alph%"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	_, err = r.GetByMultiField(ctx, []Condition{{Field: "owner", Value: "u9"}}, nil)
	assert.ErrorIs(t, err, apperr.ResourceNotFound())

	_, err = r.GetByMultiField(ctx, []Condition{{Field: "name", Op: OpLike, Value: "al%"}}, nil)
	assert.ErrorIs(t, err, apperr.MultipleResultsFound())
	assert.True(t, apperr.IsSystem(err))

	in, err := r.GetAllByMultiField(ctx, []Condition{{Field: "name", Op: OpIn, Value: []string{"alpha", "bravo"}}}, nil)
	require.NoError(t, err)
	assert.Len(t, in, 2)

	neq, err := r.Count(ctx, Condition{Field: "owner", Op: OpNeq, Value: "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, neq)

	gt, err := r.Count(ctx, Condition{Field: "name", Op: OpGt, Value: "alpine"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, gt)

	nulls, err := r.Count(ctx, Condition{Field: "owner", Op: OpIsNull})
	require.NoError(t, err)
	assert.Zero(t, nulls)

	_, err = r.Count(ctx, Condition{Field: "owner", Op: "~="})
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = r.GetByField(ctx, "secret", "x", nil)
	assert.ErrorIs(t, err, apperr.InvalidField(""))
}

func TestUpdate_MovesUpdatedAtStrictlyForward(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()
	p := mustCreate(t, r, "alpha", "u1")

	// Clock has not advanced since Create.
	got, err := r.Update(ctx, p.ID, map[string]any{"name": "renamed", "updated_by": "u2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "u2", got.UpdatedBy)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt), "%v !> %v", got.UpdatedAt, p.UpdatedAt)

	later := fixedNow.Add(time.Hour)
	r.now = func() time.Time { return later }
	again, err := r.Update(ctx, p.ID, map[string]any{"description": "d"}, nil)
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.Equal(later))

	stored, err := r.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, "d", stored.Description)
	assert.True(t, stored.UpdatedAt.Equal(later))
	assert.True(t, stored.CreatedAt.Equal(fixedNow))
}

func TestUpdate_Failures(t *testing.T) {
	r := newProjects(t, newRepoDB(t, true))
	ctx := context.Background()
	p := mustCreate(t, r, "alpha", "u1")

	_, err := r.Update(ctx, "missing", map[string]any{"name": "x"}, nil)
	assert.ErrorIs(t, err, apperr.ResourceNotFound())

	for _, field := range []string{"id", "created_at", "created_by", "updated_at", "nope", "tasks"} {
		_, err := r.Update(ctx, p.ID, map[string]any{field: "x"}, nil)
		assert.ErrorIs(t, err, apperr.InvalidField(""), field)
	}

	stored, err := r.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", stored.Name)
	assert.True(t, stored.UpdatedAt.Equal(fixedNow), "rejected updates must not write")
}

func TestWritesInsideSessionRollBackOnlyThemselves(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	sess, err := Sessions{DB: db}.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	projects := newProjects(t, db).WithDB(sess.DB())
	tasks := newTasks(t, db).WithDB(sess.DB())

	p := mustCreate(t, projects, "alpha", "u1")

	// foreign key violation fails inside its own savepoint
	_, err = tasks.Create(ctx, map[string]any{"project_id": "no-such-project", "title": "orphan"})
	require.Error(t, err)
	assert.True(t, IsDatabaseError(err))

	require.NoError(t, sess.Commit())

	after := newProjects(t, db)
	got, err := after.GetByID(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.NotNil(t, got, "earlier write in the same session survives")

	n, err := newTasks(t, db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete(t *testing.T) {
	db := newRepoDB(t, true)
	r := newProjects(t, db)
	ctx := context.Background()
	a := mustCreate(t, r, "alpha", "u1")
	b := mustCreate(t, r, "bravo", "u1")

	require.NoError(t, r.Delete(ctx, a))
	assert.ErrorIs(t, r.Delete(ctx, nil), apperr.ResourceNotFound())

	require.NoError(t, r.DeleteByID(ctx, b.ID))
	err := r.DeleteByID(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ResourceNotFound())
	assert.False(t, IsDatabaseError(err))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("service: %w", &OpError{Op: "create", Err: cause})

	assert.True(t, IsDatabaseError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "repo create: disk full")
}
