package fss

import (
	"context"

	"github.com/google/uuid"
)

// CorrelationHeader carries the correlation id of a request. The service
// echoes it on every response.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationIDProvider returns the correlation id for a new request.
type CorrelationIDProvider func() string

// NewCorrelationID is the default CorrelationIDProvider.
func NewCorrelationID() string {
	return uuid.NewString()
}

type correlationKey struct{}

// WithCorrelationID returns a context whose requests carry id. All requests
// of one job run usually share the same id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored in ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}
