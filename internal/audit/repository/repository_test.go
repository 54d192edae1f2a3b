package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fedbill/internal/audit/domain"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T) (domain.Repository, []*domain.AuditLog) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AuditLog{}))
	r := Provide(db)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []*domain.AuditLog{
		{ID: 1, ActorType: "admin_token", Action: "user.add", TargetType: domain.TargetTypeUser, TargetID: strPtr("alice@p"), CreatedAt: base},
		{ID: 2, ActorType: "admin_token", Action: "user.add", TargetType: domain.TargetTypeUser, TargetID: strPtr("bob@p"), CreatedAt: base},
		{ID: 3, ActorType: "admin_token", Action: "user.unregister", TargetType: domain.TargetTypeUser, TargetID: strPtr("alice@p"), CreatedAt: base.Add(time.Second)},
		{ID: 4, ActorType: "admin_token", Action: "plan.create", TargetType: domain.TargetTypePlan, TargetID: strPtr("gold"), CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, r.Insert(context.Background(), e))
	}
	return r, entries
}

func ids(logs []*domain.AuditLog) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ID)
	}
	return out
}

func TestListOrdersNewestFirstAndPeeksOnePastLimit(t *testing.T) {
	r, _ := seed(t)
	logs, err := r.List(context.Background(), domain.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{4, 3, 2}, ids(logs))
}

func TestListByTenantPrincipal(t *testing.T) {
	r, _ := seed(t)
	alice := tenantdomain.Principal{UserID: "alice", Provider: "p"}
	logs, err := r.List(context.Background(), domain.ListFilter{Tenant: &alice})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{3, 1}, ids(logs))
}

func TestListResumesAfterCursorOnTiedTimestamps(t *testing.T) {
	r, entries := seed(t)
	cursor := &domain.AuditCursor{ID: entries[1].ID, CreatedAt: entries[1].CreatedAt}
	logs, err := r.List(context.Background(), domain.ListFilter{Cursor: cursor})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1}, ids(logs))
}

func TestListTimeWindow(t *testing.T) {
	r, entries := seed(t)
	start := entries[2].CreatedAt
	end := entries[2].CreatedAt
	logs, err := r.List(context.Background(), domain.ListFilter{StartAt: &start, EndAt: &end, Action: " user.unregister "})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{3}, ids(logs))
}

func TestListPropagatesQueryError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "audit_logs" WHERE "action" = $1`)).
		WithArgs("plan.remove").
		WillReturnError(assert.AnError)

	_, err = Provide(db).List(context.Background(), domain.ListFilter{Action: "plan.remove"})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
