package correlation

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// HeaderName carries the correlation id between fedbill and its peers.
const HeaderName = "X-Correlation-ID"

// correlationKey is an unexported type for context keys within this package.
type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = NewID()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// NewID returns a fresh sortable id.
func NewID() string {
	return ulid.Make().String()
}

// InjectHeader copies the correlation and trace ids of ctx onto an outgoing request.
func InjectHeader(ctx context.Context, header http.Header) {
	if header == nil {
		return
	}
	if cid := ExtractCorrelationID(ctx); cid != "" {
		header.Set(HeaderName, cid)
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		header.Set("X-Trace-ID", sc.TraceID().String())
		header.Set("X-Span-ID", sc.SpanID().String())
	}
}
