package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithActor(ctx, "admin_token", "ops")
	ctx = WithTenant(ctx, "u1", "p1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	kind, id := ActorFromContext(ctx)
	assert.Equal(t, "admin_token", kind)
	assert.Equal(t, "ops", id)
	user, provider := TenantFromContext(ctx)
	assert.Equal(t, "u1", user)
	assert.Equal(t, "p1", provider)

	assert.Equal(t, ctx, WithRequestID(ctx, ""))
}

func TestClient(t *testing.T) {
	ip, ua := ClientFromContext(context.Background())
	assert.Empty(t, ip)
	assert.Empty(t, ua)

	ctx := WithClient(context.Background(), " 10.0.0.1 ", "curl/8")
	ip, ua = ClientFromContext(ctx)
	assert.Equal(t, "10.0.0.1", ip)
	assert.Equal(t, "curl/8", ua)
}
