package repo

import (
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/tbourn/go-service-shell/internal/apperr"
)

// CheckConcurrency verifies that the client saw the current version of
// entity. clientUpdatedAt may be a time.Time, a *time.Time or a timestamp
// string in any layout cast understands (including the response layout
// "2006-01-02 15:04:05", read as UTC).
//
// A nil entity yields RESOURCE_NOT_FOUND. A different or unparseable
// timestamp yields CONCURRENCY_CONFLICT_ERROR.
func CheckConcurrency(entity Entity, clientUpdatedAt any) error {
	if isNil(entity) {
		return apperr.ResourceNotFound()
	}

	var client time.Time
	switch v := clientUpdatedAt.(type) {
	case time.Time:
		client = v
	case *time.Time:
		if v == nil {
			return apperr.ConflictError()
		}
		client = *v
	default:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return apperr.NewApplicationError(apperr.CodeConflict, apperr.WithCause(err))
		}
		client = t
	}

	if !entity.LastUpdated().Equal(client) {
		return apperr.ConflictError()
	}
	return nil
}

func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
