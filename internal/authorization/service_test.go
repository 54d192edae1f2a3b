package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, name string) (Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	svc, err := NewService(Params{
		Enforcer: enforcer,
		Config:   config.Config{AdminBootstrapSubject: "root"},
		Log:      zap.NewNop(),
	})
	require.NoError(t, err)
	return svc, db
}

func TestBootstrapSubjectIsAdmin(t *testing.T) {
	svc, _ := newTestService(t, "authz_bootstrap")
	ctx := context.Background()

	for _, object := range objects {
		assert.NoError(t, svc.Authorize(ctx, "root", object, ActionWrite), object)
	}
	roles, err := svc.Roles("root")
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin}, roles)
}

func TestAuditorIsReadOnly(t *testing.T) {
	svc, _ := newTestService(t, "authz_auditor")
	ctx := context.Background()

	err := svc.Authorize(ctx, "ops", ObjectPlan, ActionRead)
	assert.True(t, ierr.IsPermissionDenied(err))

	require.NoError(t, svc.GrantRole(ctx, "ops", "Auditor"))
	assert.NoError(t, svc.Authorize(ctx, "ops", ObjectPlan, ActionRead))
	assert.True(t, ierr.IsPermissionDenied(svc.Authorize(ctx, "ops", ObjectPlan, ActionWrite)))

	require.NoError(t, svc.RevokeRole(ctx, "ops", RoleAuditor))
	assert.True(t, ierr.IsPermissionDenied(svc.Authorize(ctx, "ops", ObjectPlan, ActionRead)))
	assert.True(t, ierr.IsNotFound(svc.RevokeRole(ctx, "ops", RoleAuditor)))
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, "authz_validate")
	ctx := context.Background()

	tests := []struct {
		name                    string
		subject, object, action string
	}{
		{"empty subject", "", ObjectPlan, ActionRead},
		{"unknown object", "root", "invoice", ActionRead},
		{"unknown action", "root", ObjectPlan, "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, ierr.IsValidation(svc.Authorize(ctx, tt.subject, tt.object, tt.action)))
		})
	}

	assert.True(t, ierr.IsValidation(svc.GrantRole(ctx, "ops", "owner")))
	assert.True(t, ierr.IsValidation(svc.GrantRole(ctx, "role:admin", RoleAdmin)))
}

func TestPoliciesPersist(t *testing.T) {
	svc, db := newTestService(t, "authz_persist")
	require.NoError(t, svc.GrantRole(context.Background(), "ops", RoleAuditor))

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	again, err := NewService(Params{Enforcer: enforcer})
	require.NoError(t, err)
	assert.NoError(t, again.Authorize(context.Background(), "ops", ObjectUser, ActionRead))
}
