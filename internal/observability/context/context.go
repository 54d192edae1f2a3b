package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}
type tenantKey struct{}

type actor struct {
	kind string
	id   string
}

type tenant struct {
	userID   string
	provider string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithActor records who issued the request, e.g. ("admin_token", "ops").
func WithActor(ctx context.Context, kind, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{kind: strings.TrimSpace(kind), id: strings.TrimSpace(id)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a.kind, a.id
}

// WithTenant records the federation user a request or tick is about.
func WithTenant(ctx context.Context, userID, provider string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant{userID: userID, provider: provider})
}

func TenantFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	t, _ := ctx.Value(tenantKey{}).(tenant)
	return t.userID, t.provider
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithClient records the remote address and user agent of a request.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: strings.TrimSpace(ip), userAgent: strings.TrimSpace(userAgent)})
}

func ClientFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	c, _ := ctx.Value(clientKey{}).(client)
	return c.ip, c.userAgent
}
