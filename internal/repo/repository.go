package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/tbourn/go-service-shell/internal/apperr"
)

// Entity is the capability contract of every model handled by Repository:
// a stable identifier and the optimistic-concurrency token.
type Entity interface {
	Identifier() any
	LastUpdated() time.Time
}

// JoinFunc applies one eager-loading strategy (Preload, Joins, ...) to a query.
type JoinFunc func(*gorm.DB) *gorm.DB

// Join errors. They are returned wrapped in an INVALID_JOIN application
// error, so both errors.Is(err, ErrUnknownJoin) and apperr.As work.
var (
	ErrDuplicateJoin   = errors.New("repo: duplicate join")
	ErrUnknownJoin     = errors.New("repo: unknown join")
	ErrInvalidOperator = errors.New("repo: invalid operator")
)

// JoinSet names the relations to load alongside the main entity.
type JoinSet []string

// NewJoinSet builds a JoinSet, rejecting duplicate names.
func NewJoinSet(names ...string) (JoinSet, error) {
	seen := make(map[string]struct{}, len(names))
	out := make(JoinSet, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, joinError(ErrDuplicateJoin, n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func joinError(sentinel error, name string) error {
	return apperr.NewApplicationError(apperr.CodeInvalidJoin,
		apperr.WithParams(map[string]any{"join": name}),
		apperr.WithCause(sentinel),
	)
}

// Operator is a comparison used in a Condition.
type Operator string

const (
	OpEq     Operator = "="
	OpNeq    Operator = "!="
	OpGt     Operator = ">"
	OpGte    Operator = ">="
	OpLt     Operator = "<"
	OpLte    Operator = "<="
	OpLike   Operator = "LIKE"
	OpIn     Operator = "IN"
	OpIsNull Operator = "IS NULL"
)

// Condition is one "field op value" predicate. Conditions passed together
// are combined with AND. An empty Op means equality.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Page bounds a listing. Zero or negative values disable the bound.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Skip > 0 {
		q = q.Offset(p.Skip)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}

// Sort orders a listing by one field. Unknown fields are ignored.
type Sort struct {
	Field string
	Desc  bool
}

// OpError wraps a failure reported by the database driver.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return "repo " + e.Op + ": " + e.Err.Error() }
func (e *OpError) Unwrap() error { return e.Err }

// IsDatabaseError reports whether err originates from a database operation.
func IsDatabaseError(err error) bool {
	var oe *OpError
	return errors.As(err, &oe)
}

// Repository provides generic persistence for one entity type T, which must
// be a struct type mapped by GORM.
//
// Every write runs inside db.Transaction. When db is already a transaction
// (the request session) that becomes a savepoint, so a failed write undoes
// only its own partial changes and never commits the outer transaction.
type Repository[T Entity] struct {
	db     *gorm.DB
	schema *schema.Schema
	joins  map[string]JoinFunc
	now    func() time.Time
}

var schemaCache sync.Map

// New validates the join table and the schema of T.
func New[T Entity](db *gorm.DB, joins map[string]JoinFunc) (*Repository[T], error) {
	if db == nil {
		return nil, errors.New("repo: nil database handle")
	}
	if reflect.TypeOf((*T)(nil)).Elem().Kind() != reflect.Struct {
		return nil, errors.New("repo: entity type must be a struct")
	}
	for name, fn := range joins {
		if name == "" {
			return nil, errors.New("repo: join with empty name")
		}
		if fn == nil {
			return nil, fmt.Errorf("repo: join %q has no loader", name)
		}
	}
	s, err := schema.Parse(new(T), &schemaCache, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("repo: parse schema: %w", err)
	}
	return &Repository[T]{db: db, schema: s, joins: joins, now: clock}, nil
}

// clock truncates to whole seconds, the precision of serialized timestamps,
// so a value echoed back by a client compares equal.
func clock() time.Time { return time.Now().UTC().Truncate(time.Second) }

// WithDB returns a copy of the repository bound to db (typically the
// request transaction).
func (r *Repository[T]) WithDB(db *gorm.DB) *Repository[T] {
	cp := *r
	cp.db = db
	return &cp
}

// Create builds a T from attrs (keys are column or field names), stamps
// created_at/updated_at and inserts it.
func (r *Repository[T]) Create(ctx context.Context, attrs map[string]any) (*T, error) {
	ent := new(T)
	rv := reflect.ValueOf(ent).Elem()
	for name, v := range attrs {
		f, err := r.field(name)
		if err != nil {
			return nil, err
		}
		if isTimestamp(f) {
			return nil, apperr.InvalidField(name)
		}
		if err := f.Set(ctx, rv, v); err != nil {
			return nil, invalidValue(name, err)
		}
	}
	now := r.now()
	for _, name := range []string{"created_at", "updated_at"} {
		if f := r.schema.LookUpField(name); f != nil {
			if err := f.Set(ctx, rv, now); err != nil {
				return nil, err
			}
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(ent).Error
	})
	if err != nil {
		return nil, wrap("create", err)
	}
	return ent, nil
}

// GetByID returns the entity whose id (or idField) equals id, or (nil, nil)
// when there is none.
func (r *Repository[T]) GetByID(ctx context.Context, id any, joins JoinSet, idField ...string) (*T, error) {
	col, err := r.idColumn(idField)
	if err != nil {
		return nil, err
	}
	rows, err := r.find(ctx, "get_by_id", joins, func(q *gorm.DB) *gorm.DB {
		return q.Where(clause.Eq{Column: col, Value: id})
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// GetAll lists entities in the requested order and page.
func (r *Repository[T]) GetAll(ctx context.Context, page Page, joins JoinSet, sort Sort) ([]T, error) {
	return r.find(ctx, "get_all", joins, func(q *gorm.DB) *gorm.DB {
		return page.apply(q.Order(r.orderBy(sort)))
	})
}

// GetByField lists entities whose field equals value.
func (r *Repository[T]) GetByField(ctx context.Context, field string, value any, joins JoinSet) ([]T, error) {
	return r.GetAllByMultiField(ctx, []Condition{{Field: field, Op: OpEq, Value: value}}, joins)
}

// GetOneByField returns the single entity whose field equals value, nil
// when there is none, and MULTIPLE_RESULTS_FOUND when there are several.
func (r *Repository[T]) GetOneByField(ctx context.Context, field string, value any, joins JoinSet) (*T, error) {
	rows, err := r.GetByField(ctx, field, value, joins)
	switch {
	case err != nil:
		return nil, err
	case len(rows) == 0:
		return nil, nil
	case len(rows) > 1:
		return nil, apperr.MultipleResultsFound()
	}
	return &rows[0], nil
}

// GetByMultiField returns the entity matching every condition. It fails
// with RESOURCE_NOT_FOUND for zero matches and MULTIPLE_RESULTS_FOUND for
// more than one.
func (r *Repository[T]) GetByMultiField(ctx context.Context, conds []Condition, joins JoinSet) (*T, error) {
	rows, err := r.GetAllByMultiField(ctx, conds, joins)
	switch {
	case err != nil:
		return nil, err
	case len(rows) == 0:
		return nil, apperr.ResourceNotFound()
	case len(rows) > 1:
		return nil, apperr.MultipleResultsFound()
	}
	return &rows[0], nil
}

// GetAllByMultiField lists entities matching every condition.
func (r *Repository[T]) GetAllByMultiField(ctx context.Context, conds []Condition, joins JoinSet) ([]T, error) {
	exprs, err := r.where(conds)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, "get_by_fields", joins, func(q *gorm.DB) *gorm.DB {
		if len(exprs) > 0 {
			q = q.Clauses(clause.Where{Exprs: exprs})
		}
		return q.Order(r.orderBy(Sort{}))
	})
}

// Count returns the number of entities matching every condition.
func (r *Repository[T]) Count(ctx context.Context, conds ...Condition) (int64, error) {
	exprs, err := r.where(conds)
	if err != nil {
		return 0, err
	}
	q := r.db.WithContext(ctx).Model(new(T))
	if len(exprs) > 0 {
		q = q.Clauses(clause.Where{Exprs: exprs})
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// Update applies data to the entity identified by id and returns it with
// the requested joins loaded. updated_at always moves strictly forward.
//
// A missing entity yields RESOURCE_NOT_FOUND before anything is written.
// Unknown fields, relations and managed columns (primary key, created_*,
// updated_at) yield INVALID_FIELD. The caller's transaction is never
// committed here.
func (r *Repository[T]) Update(ctx context.Context, id any, data map[string]any, joins JoinSet, idField ...string) (*T, error) {
	col, err := r.idColumn(idField)
	if err != nil {
		return nil, err
	}
	ent, err := r.GetByID(ctx, id, joins, idField...)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, apperr.ResourceNotFound()
	}

	rv := reflect.ValueOf(ent).Elem()
	cols := make(map[string]any, len(data)+1)
	for name, v := range data {
		f, err := r.field(name)
		if err != nil {
			return nil, err
		}
		if r.immutable(f) {
			return nil, apperr.InvalidField(name)
		}
		if err := f.Set(ctx, rv, v); err != nil {
			return nil, invalidValue(name, err)
		}
		cols[f.DBName], _ = f.ValueOf(ctx, rv)
	}

	if f := r.schema.LookUpField("updated_at"); f != nil {
		prev := (*ent).LastUpdated()
		next := r.now()
		if !next.After(prev) {
			next = prev.Truncate(time.Second).Add(time.Second)
		}
		if err := f.Set(ctx, rv, next); err != nil {
			return nil, err
		}
		cols[f.DBName] = next
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(new(T)).Where(clause.Eq{Column: col, Value: id}).Updates(cols).Error
	})
	if err != nil {
		return nil, wrap("update", err)
	}
	return ent, nil
}

// Delete removes ent by its primary key.
func (r *Repository[T]) Delete(ctx context.Context, ent *T) error {
	if ent == nil {
		return apperr.ResourceNotFound()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(ent).Error
	})
	return wrap("delete", err)
}

// DeleteByID removes the entity whose id (or idField) equals id.
func (r *Repository[T]) DeleteByID(ctx context.Context, id any, idField ...string) error {
	col, err := r.idColumn(idField)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(clause.Eq{Column: col, Value: id}).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ResourceNotFound()
		}
		return nil
	})
	return wrap("delete", err)
}

// ---- internals ----

func (r *Repository[T]) query(ctx context.Context, joins JoinSet) (*gorm.DB, error) {
	q := r.db.WithContext(ctx).Model(new(T))
	seen := make(map[string]struct{}, len(joins))
	for _, name := range joins {
		if _, dup := seen[name]; dup {
			return nil, joinError(ErrDuplicateJoin, name)
		}
		seen[name] = struct{}{}
		fn, ok := r.joins[name]
		if !ok {
			return nil, joinError(ErrUnknownJoin, name)
		}
		q = fn(q)
	}
	return q, nil
}

func (r *Repository[T]) find(ctx context.Context, op string, joins JoinSet, scope func(*gorm.DB) *gorm.DB) ([]T, error) {
	q, err := r.query(ctx, joins)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := scope(q).Find(&rows).Error; err != nil {
		return nil, wrap(op, err)
	}
	return dedupe(rows), nil
}

// dedupe drops rows repeated by one-to-many joins, keeping first occurrences.
func dedupe[T Entity](rows []T) []T {
	if len(rows) < 2 {
		return rows
	}
	seen := make(map[any]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		id := row.Identifier()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, row)
	}
	return out
}

func (r *Repository[T]) field(name string) (*schema.Field, error) {
	f := r.schema.LookUpField(name)
	if f == nil || f.DBName == "" {
		return nil, apperr.InvalidField(name)
	}
	return f, nil
}

func (r *Repository[T]) column(f *schema.Field) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: f.DBName}
}

func (r *Repository[T]) idColumn(idField []string) (clause.Column, error) {
	if len(idField) > 0 && idField[0] != "" {
		f, err := r.field(idField[0])
		if err != nil {
			return clause.Column{}, err
		}
		return r.column(f), nil
	}
	if pk := r.schema.PrioritizedPrimaryField; pk != nil {
		return r.column(pk), nil
	}
	return clause.Column{}, errors.New("repo: " + r.schema.Name + " has no primary key")
}

// orderBy falls back to the primary key so pages are stable.
func (r *Repository[T]) orderBy(s Sort) clause.OrderByColumn {
	if s.Field != "" {
		if f := r.schema.LookUpField(s.Field); f != nil && f.DBName != "" {
			return clause.OrderByColumn{Column: r.column(f), Desc: s.Desc}
		}
	}
	col := clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey}
	if pk := r.schema.PrioritizedPrimaryField; pk != nil {
		col = r.column(pk)
	}
	return clause.OrderByColumn{Column: col, Desc: false}
}

func (r *Repository[T]) immutable(f *schema.Field) bool {
	return f.PrimaryKey || isTimestamp(f) || f.DBName == "created_by"
}

func isTimestamp(f *schema.Field) bool {
	return f.DBName == "created_at" || f.DBName == "updated_at"
}

func (r *Repository[T]) where(conds []Condition) ([]clause.Expression, error) {
	exprs := make([]clause.Expression, 0, len(conds))
	for _, c := range conds {
		f, err := r.field(c.Field)
		if err != nil {
			return nil, err
		}
		col := r.column(f)
		switch c.Op {
		case OpEq, "":
			exprs = append(exprs, clause.Eq{Column: col, Value: c.Value})
		case OpNeq:
			exprs = append(exprs, clause.Neq{Column: col, Value: c.Value})
		case OpGt:
			exprs = append(exprs, clause.Gt{Column: col, Value: c.Value})
		case OpGte:
			exprs = append(exprs, clause.Gte{Column: col, Value: c.Value})
		case OpLt:
			exprs = append(exprs, clause.Lt{Column: col, Value: c.Value})
		case OpLte:
			exprs = append(exprs, clause.Lte{Column: col, Value: c.Value})
		case OpLike:
			exprs = append(exprs, clause.Like{Column: col, Value: c.Value})
		case OpIn:
			exprs = append(exprs, clause.IN{Column: col, Values: values(c.Value)})
		case OpIsNull:
			exprs = append(exprs, clause.Expr{SQL: "? IS NULL", Vars: []any{col}})
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, c.Op)
		}
	}
	return exprs, nil
}

// values spreads a slice or array into IN arguments.
func values(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func invalidValue(name string, cause error) error {
	return apperr.NewApplicationError(apperr.CodeInvalidField,
		apperr.WithParams(map[string]any{"field_name": name}),
		apperr.WithCause(cause),
	)
}

// wrap leaves classified errors alone and tags everything else as a
// database failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if IsDatabaseError(err) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
