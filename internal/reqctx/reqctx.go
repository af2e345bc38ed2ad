// Package reqctx carries the per-request correlation identifier.
//
// A RequestContext is created by the outermost middleware for every inbound
// request and stored in the request's context.Context. It is read-only after
// creation and disappears with the request; there is no process-wide state.
// The identifier exists for log correlation only and must never drive
// business or security decisions.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// RequestContext holds request-scoped metadata.
type RequestContext struct {
	CorrelationID uuid.UUID
}

type ctxKey struct{}

// New returns a RequestContext with a random (v4) correlation id.
func New() RequestContext {
	return RequestContext{CorrelationID: uuid.New()}
}

// WithContext returns a copy of ctx carrying rc.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the RequestContext stored in ctx. The second value is false
// when ctx carries none, in which case the zero value (uuid.Nil) is returned.
func From(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(ctxKey{}).(RequestContext)
	return rc, ok
}

// CorrelationID returns the correlation id of ctx as a string, or the nil
// UUID when none is set.
func CorrelationID(ctx context.Context) string {
	rc, _ := From(ctx)
	return rc.CorrelationID.String()
}
