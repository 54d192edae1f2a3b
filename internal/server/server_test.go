package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	auditrepo "github.com/smallbiznis/fedbill/internal/audit/repository"
	auditsvc "github.com/smallbiznis/fedbill/internal/audit/service"
	"github.com/smallbiznis/fedbill/internal/auth/credential"
	"github.com/smallbiznis/fedbill/internal/authorization"
	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/observability"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/providers/pdf"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeFinance struct {
	authorized bool
	users      map[tenantdomain.Principal]string
	plans      map[string]map[string]string
	state      map[string]string
	reloads    int
}

func newFakeFinance() *fakeFinance {
	return &fakeFinance{
		authorized: true,
		users:      map[tenantdomain.Principal]string{},
		plans:      map[string]map[string]string{"default": {"billing_interval": "60000"}},
		state:      map[string]string{},
	}
}

func (f *fakeFinance) IsAuthorized(_ context.Context, p tenantdomain.Principal, _ plandomain.Operation) (bool, error) {
	if _, ok := f.users[p]; !ok {
		return false, ierr.NewErrorf("user %s not found", p).Mark(ierr.ErrNotFound)
	}
	return f.authorized, nil
}

func (f *fakeFinance) GetFinanceStateProperty(p tenantdomain.Principal, property string) (string, error) {
	v, ok := f.state[property]
	if !ok {
		return "", ierr.NewErrorf("unknown property %s", property).Mark(ierr.ErrValidation)
	}
	return v, nil
}

func (f *fakeFinance) UpdateFinanceState(_ context.Context, _ tenantdomain.Principal, state map[string]string) error {
	for k, v := range state {
		f.state[k] = v
	}
	return nil
}

func (f *fakeFinance) ChangePlan(_ context.Context, p tenantdomain.Principal, newPlan string) error {
	if _, ok := f.plans[newPlan]; !ok {
		return ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	f.users[p] = newPlan
	return nil
}

func (f *fakeFinance) UnregisterUser(_ context.Context, p tenantdomain.Principal) error {
	delete(f.users, p)
	return nil
}

func (f *fakeFinance) AddUser(_ context.Context, p tenantdomain.Principal, planName string) error {
	if _, ok := f.plans[planName]; !ok {
		return ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	f.users[p] = planName
	return nil
}

func (f *fakeFinance) RemoveUser(_ context.Context, p tenantdomain.Principal) error {
	if _, ok := f.users[p]; ok {
		return ierr.NewError("still subscribed").WithHint("unregister the user before removing it").Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func (f *fakeFinance) GetInvoice(p tenantdomain.Principal, id string) (tenantdomain.Invoice, error) {
	if id != "inv-1" {
		return tenantdomain.Invoice{}, ierr.NewError("invoice not found").Mark(ierr.ErrNotFound)
	}
	return tenantdomain.Invoice{
		ID:        id,
		UserID:    p.UserID,
		Provider:  p.Provider,
		Total:     decimal.Zero,
		StartTime: time.Unix(0, 0),
		EndTime:   time.Unix(3600, 0),
		State:     tenantdomain.InvoiceStateWaiting,
	}, nil
}

func (f *fakeFinance) CreateFinancePlan(_ context.Context, name, _ string, options map[string]string) error {
	if _, ok := f.plans[name]; ok {
		return ierr.NewError("plan exists").Mark(ierr.ErrAlreadyExists)
	}
	f.plans[name] = options
	return nil
}

func (f *fakeFinance) GetFinancePlanOptions(name string) (map[string]string, error) {
	opts, ok := f.plans[name]
	if !ok {
		return nil, ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	return opts, nil
}

func (f *fakeFinance) ChangeOptions(_ context.Context, name string, options map[string]string) error {
	if _, ok := f.plans[name]; !ok {
		return ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	f.plans[name] = options
	return nil
}

func (f *fakeFinance) RemoveFinancePlan(_ context.Context, name string) error {
	delete(f.plans, name)
	return nil
}

func (f *fakeFinance) Plans() []string {
	out := make([]string, 0, len(f.plans))
	for name := range f.plans {
		out = append(out, name)
	}
	return out
}

func (f *fakeFinance) Reload(context.Context) error {
	f.reloads++
	return nil
}

type testEnv struct {
	server  *Server
	finance *fakeFinance
	authz   authorization.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	auditSvc := auditsvc.NewService(auditsvc.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(db),
		Clock: clock.New(),
	})

	rootHash, err := credential.Hash("rootsecret")
	require.NoError(t, err)
	opsHash, err := credential.Hash("opssecret")
	require.NoError(t, err)
	cfg := config.Config{
		AppName:               "fedbill",
		AppVersion:            "1.2.3",
		AdminTokens:           map[string]string{"root": rootHash, "ops": opsHash},
		AdminBootstrapSubject: "root",
	}
	authz, err := authorization.NewService(authorization.Params{Enforcer: enforcer, Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)

	fin := newFakeFinance()
	s := NewServer(ServerParams{
		Gin:      NewEngine(observability.Config{Environment: "test"}),
		Cfg:      cfg,
		Finance:  fin,
		AuthzSvc: authz,
		Verifier: credential.NewVerifier(cfg, zap.NewNop()),
		Audit:    auditSvc,
		PDF:      pdf.New(),
		Log:      zap.NewNop(),
	})
	return &testEnv{server: s, finance: fin, authz: authz}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/fs/version", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "1.2.3", data["version"])
}

func TestIsAuthorized(t *testing.T) {
	env := newTestEnv(t)
	p := tenantdomain.Principal{UserID: "u1", Provider: "p1"}
	env.finance.users[p] = "default"

	body := gin.H{"userId": "u1", "provider": "p1", "operation": gin.H{"type": "create", "resourceType": "compute"}}
	w := env.do(http.MethodPost, "/fs/authorized", "", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["data"].(map[string]any)["authorized"])

	env.finance.authorized = false
	w = env.do(http.MethodPost, "/fs/authorized", "", body)
	assert.Equal(t, false, decode(t, w)["data"].(map[string]any)["authorized"])

	body["userId"] = "unknown"
	w = env.do(http.MethodPost, "/fs/authorized", "", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ierr.ErrCodeNotFound, decode(t, w)["error"].(map[string]any)["type"])

	w = env.do(http.MethodPost, "/fs/authorized", "", gin.H{"userId": "u1", "provider": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/fs/admin/reload", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/fs/admin/reload", "root.wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// ops has no role yet
	w = env.do(http.MethodPost, "/fs/admin/reload", "ops.opssecret", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/fs/admin/reload", "root.rootsecret", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.finance.reloads)
}

func TestPolicyGrantAndRevoke(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/fs/admin/policy", "root.rootsecret", gin.H{"subject": "ops", "role": "auditor"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"auditor"}, decode(t, w)["data"].(map[string]any)["roles"])

	w = env.do(http.MethodGet, "/fs/plan/default", "ops.opssecret", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodDelete, "/fs/plan/default", "ops.opssecret", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodDelete, "/fs/admin/policy", "root.rootsecret", gin.H{"subject": "ops", "role": "auditor"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/fs/plan/default", "ops.opssecret", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/fs/admin/policy", "root.rootsecret", gin.H{"subject": "ops", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := "root.rootsecret"

	w := env.do(http.MethodPost, "/fs/plan", token, gin.H{"name": "gold", "type": "prepaid", "options": gin.H{"billing_interval": "1000"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/fs/plan", token, gin.H{"name": "gold", "type": "prepaid"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/fs/plan", token, gin.H{"type": "prepaid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/fs/plan/gold", token, gin.H{"options": gin.H{"billing_interval": "2000"}})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2000", env.finance.plans["gold"]["billing_interval"])

	w = env.do(http.MethodGet, "/fs/plan/gold", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "gold", data["name"])

	w = env.do(http.MethodGet, "/fs/plan/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/fs/plan/gold", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, env.finance.plans, "gold")
}

func TestUserRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := "root.rootsecret"
	p := tenantdomain.Principal{UserID: "u1", Provider: "p1"}

	w := env.do(http.MethodPost, "/fs/admin/user", token, gin.H{"userId": "u1", "provider": "p1", "financePlanName": "default"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "default", env.finance.users[p])

	w = env.do(http.MethodPut, "/fs/admin/user", token, gin.H{"userId": "u1", "provider": "p1", "financePlanName": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/fs/admin/user", token, gin.H{"userId": "u1", "provider": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/fs/admin/user/u1/p1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unregister the user before removing it", decode(t, w)["error"].(map[string]any)["message"])

	w = env.do(http.MethodDelete, "/fs/admin/user/unregister/u1/p1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/fs/admin/user/u1/p1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestFinanceStateRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := "root.rootsecret"

	w := env.do(http.MethodPut, "/fs/plan/user/u1/p1", token, gin.H{"credits": "10"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/fs/plan/user/u1/p1/credits", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", decode(t, w)["data"].(map[string]any)["value"])

	w = env.do(http.MethodPut, "/fs/plan/user/u1/p1", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoicePDF(t *testing.T) {
	env := newTestEnv(t)
	token := "root.rootsecret"

	w := env.do(http.MethodGet, "/fs/plan/user/u1/p1/invoices/inv-1/pdf", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "u1-p1-inv-1.pdf")

	w = env.do(http.MethodGet, "/fs/plan/user/u1/p1/invoices/nope/pdf", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	token := "root.rootsecret"

	w := env.do(http.MethodPost, "/fs/plan", token, gin.H{"name": "gold", "type": "prepaid", "options": gin.H{"billing_interval": "1000"}})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(http.MethodPost, "/fs/admin/user", token, gin.H{"userId": "u1", "provider": "p1", "financePlanName": "gold"})
	require.Equal(t, http.StatusCreated, w.Code)
	// failed mutations leave no trace
	w = env.do(http.MethodPost, "/fs/admin/user", token, gin.H{"userId": "u2", "provider": "p1", "financePlanName": "missing"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/fs/admin/audit", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	logs := data["audit_logs"].([]any)
	require.Len(t, logs, 2)
	latest := logs[0].(map[string]any)
	assert.Equal(t, "user.add", latest["action"])
	assert.Equal(t, "u1@p1", latest["target_id"])
	assert.Equal(t, "admin_token", latest["actor_type"])
	assert.Equal(t, "root", latest["actor_id"])

	w = env.do(http.MethodGet, "/fs/admin/audit?action=plan.create&page_size=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["audit_logs"].([]any), 1)
	assert.Equal(t, false, data["has_more"])

	w = env.do(http.MethodGet, "/fs/admin/audit?user_id=u1&provider=p1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs = decode(t, w)["data"].(map[string]any)["audit_logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "user.add", logs[0].(map[string]any)["action"])

	w = env.do(http.MethodGet, "/fs/admin/audit?user_id=u1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/fs/admin/audit?start_at=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/fs/admin/audit", "ops.opssecret", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMapErrorHidesInternalCause(t *testing.T) {
	status, payload := mapError(ierr.NewError("dsn=secret").WithHint("db down").Mark(ierr.ErrDatabase))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", payload.Message)
	assert.Equal(t, ierr.ErrCodeDatabase, payload.Type)
}
