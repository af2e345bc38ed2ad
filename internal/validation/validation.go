// Package validation provides builder-style field validators. Each check
// appends an Error to the validator's list instead of failing, so a caller
// chains every rule for a field and then inspects the accumulated errors:
//
//	v := validation.String("name", req.Name).Required().MinLength(3).MaxLength(100)
//	if errs := v.Errors(); len(errs) > 0 { … }
//
// Messages come from the shared catalog (apperr), so validation failures
// render exactly like any other application error in the response envelope.
package validation

import (
	"net/http"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-service-shell/internal/apperr"
)

// Validation error codes.
const (
	CodeRequired  = "REQUIRED_ERROR"
	CodeMinLength = "MIN_LEN_ERROR"
	CodeMaxLength = "MAX_LEN_ERROR"
)

// Error describes one failed rule for one field.
type Error struct {
	FieldName string `json:"field_name"`
	Code      string `json:"error_code"`
	Message   string `json:"message"`
	Status    int    `json:"-"`
}

func newError(field, code string, params map[string]any) Error {
	if params == nil {
		params = map[string]any{}
	}
	params["field_name"] = field
	return Error{
		FieldName: field,
		Code:      code,
		Message:   apperr.Messages().Resolve(apperr.FamilyApplication, code, params),
		Status:    http.StatusOK,
	}
}

func (e Error) Error() string        { return e.FieldName + ": " + e.Message }
func (e Error) ErrorCode() string    { return e.Code }
func (e Error) ErrorMessage() string { return e.Message }
func (e Error) HTTPStatus() int      { return e.Status }

// StringValidator validates a single string field.
type StringValidator struct {
	field  string
	value  *string
	length int
	errs   []Error
}

// String starts a validator for field with the given value.
func String(field, value string) *StringValidator {
	return newString(field, &value)
}

// OptionalString starts a validator for a field that may be absent (nil).
// Length rules are skipped for absent values.
func OptionalString(field string, value *string) *StringValidator {
	return newString(field, value)
}

func newString(field string, value *string) *StringValidator {
	v := &StringValidator{field: field, value: value}
	if value != nil {
		v.length = utf8.RuneCountInString(norm.NFC.String(*value))
	}
	return v
}

// Required fails when the value is absent or empty. A failed Required clears
// the stored value, which turns later length checks into no-ops.
func (v *StringValidator) Required() *StringValidator {
	if v.value == nil || *v.value == "" {
		v.value = nil
		v.errs = append(v.errs, newError(v.field, CodeRequired, nil))
	}
	return v
}

// MinLength fails when the value has fewer than n characters.
func (v *StringValidator) MinLength(n int) *StringValidator {
	if v.value != nil && v.length < n {
		v.errs = append(v.errs, newError(v.field, CodeMinLength, map[string]any{"min_len": n}))
	}
	return v
}

// MaxLength fails when the value has more than n characters.
func (v *StringValidator) MaxLength(n int) *StringValidator {
	if v.value != nil && v.length > n {
		v.errs = append(v.errs, newError(v.field, CodeMaxLength, map[string]any{"max_len": n}))
	}
	return v
}

// Errors returns the accumulated errors in the order the rules ran.
func (v *StringValidator) Errors() []Error { return v.errs }

// Validator is implemented by every field validator.
type Validator interface {
	Errors() []Error
}

// Collect concatenates the errors of several validators.
func Collect(validators ...Validator) []Error {
	var out []Error
	for _, v := range validators {
		out = append(out, v.Errors()...)
	}
	return out
}
