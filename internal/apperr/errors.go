// Package apperr defines the error taxonomy shared by every layer of the
// service. Errors come in two families:
//
//   - application errors: business-rule failures the client can resolve
//     (not found, unauthorized, malformed token, concurrency conflict).
//     They default to HTTP 200 and do not request a rollback.
//   - system errors: failures an operator should investigate (database
//     outage, unclassified failures). They default to HTTP 500 and request
//     a rollback.
//
// Every error carries a stable code and a human message resolved from the
// embedded message catalog (messages.yaml). Clients branch on the code, never
// on the HTTP status alone.
package apperr

import (
	"errors"
	"net/http"
)

// Application error codes.
const (
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeDecodeError      = "DECODE_ERROR"
	CodeConflict         = "CONCURRENCY_CONFLICT_ERROR"
	CodeInvalidField     = "INVALID_FIELD"
	CodeInvalidJoin      = "INVALID_JOIN"
	CodeBadRequest       = "BAD_REQUEST"
	CodeRateLimited      = "RATE_LIMITED"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// System error codes.
const (
	CodeSystemError     = "SYSTEM_ERROR"
	CodeDBOperational   = "DB_OPERATIONAL"
	CodeMultipleResults = "MULTIPLE_RESULTS_FOUND"
)

// Error is an immutable classified error.
type Error struct {
	Family   Family
	Code     string
	Status   int
	Message  string
	Rollback bool
	Cause    error
}

// Option customises an Error at construction time.
type Option func(*options)

type options struct {
	rollback *bool
	status   int
	cause    error
	params   map[string]any
}

// WithRollback overrides the family's default rollback advice.
func WithRollback(rollback bool) Option {
	return func(o *options) { o.rollback = &rollback }
}

// WithStatus overrides the family's default HTTP status.
func WithStatus(status int) Option {
	return func(o *options) { o.status = status }
}

// WithCause attaches the underlying error. It is logged, never returned to clients.
func WithCause(err error) Option {
	return func(o *options) { o.cause = err }
}

// WithParams fills named placeholders of the message template.
func WithParams(params map[string]any) Option {
	return func(o *options) { o.params = params }
}

// NewApplicationError builds an application-family error for code.
func NewApplicationError(code string, opts ...Option) *Error {
	return build(FamilyApplication, code, http.StatusOK, false, opts)
}

// NewSystemError builds a system-family error for code.
func NewSystemError(code string, opts ...Option) *Error {
	return build(FamilySystem, code, http.StatusInternalServerError, true, opts)
}

func build(fam Family, code string, status int, rollback bool, opts []Option) *Error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.status != 0 {
		status = o.status
	}
	if o.rollback != nil {
		rollback = *o.rollback
	}
	return &Error{
		Family:   fam,
		Code:     code,
		Status:   status,
		Message:  Messages().Resolve(fam, code, o.params),
		Rollback: rollback,
		Cause:    o.cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Code + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same family and code, so callers can
// write errors.Is(err, apperr.ResourceNotFound()).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Family == t.Family && e.Code == t.Code
}

// ErrorCode, ErrorMessage and HTTPStatus expose the envelope fields.
func (e *Error) ErrorCode() string    { return e.Code }
func (e *Error) ErrorMessage() string { return e.Message }
func (e *Error) HTTPStatus() int      { return e.Status }

// IsApplication reports whether the error belongs to the application family.
func (e *Error) IsApplication() bool { return e.Family == FamilyApplication }

// Named application errors.

func ResourceNotFound() *Error { return NewApplicationError(CodeResourceNotFound) }
func Unauthorized() *Error     { return NewApplicationError(CodeUnauthorized) }
func DecodeError() *Error      { return NewApplicationError(CodeDecodeError) }
func ConflictError() *Error    { return NewApplicationError(CodeConflict) }

// InvalidField reports a field name the entity schema does not accept.
func InvalidField(name string) *Error {
	return NewApplicationError(CodeInvalidField, WithParams(map[string]any{"field_name": name}))
}

// InvalidJoin reports a relation the repository cannot load.
func InvalidJoin(name string) *Error {
	return NewApplicationError(CodeInvalidJoin, WithParams(map[string]any{"join": name}))
}

// BadRequest reports an undecodable request body.
func BadRequest(cause error) *Error {
	return NewApplicationError(CodeBadRequest, WithStatus(http.StatusBadRequest), WithCause(cause))
}

func RateLimited() *Error {
	return NewApplicationError(CodeRateLimited, WithStatus(http.StatusTooManyRequests))
}

func RouteNotFound() *Error {
	return NewApplicationError(CodeRouteNotFound, WithStatus(http.StatusNotFound))
}

func MethodNotAllowed() *Error {
	return NewApplicationError(CodeMethodNotAllowed, WithStatus(http.StatusMethodNotAllowed))
}

// Named system errors.

func SystemError() *Error          { return NewSystemError(CodeSystemError) }
func MultipleResultsFound() *Error { return NewSystemError(CodeMultipleResults) }

// DBOperationalError wraps a database failure; cause is optional.
func DBOperationalError(cause ...error) *Error {
	var opts []Option
	if len(cause) > 0 && cause[0] != nil {
		opts = append(opts, WithCause(cause[0]))
	}
	return NewSystemError(CodeDBOperational, opts...)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsApplication reports whether err wraps an application-family error.
func IsApplication(err error) bool {
	ae, ok := As(err)
	return ok && ae.Family == FamilyApplication
}

// IsSystem reports whether err wraps a system-family error.
func IsSystem(err error) bool {
	ae, ok := As(err)
	return ok && ae.Family == FamilySystem
}
