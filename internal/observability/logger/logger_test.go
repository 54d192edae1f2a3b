package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/fedbill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextOmitsAbsentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")
	assert.Empty(t, logs.All()[0].Context)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithTenant(ctx, "alice", "fed.example.org")
	WithContext(ctx, base).Info("enriched")

	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "alice", fields["user_id"])
	assert.Equal(t, "fed.example.org", fields["provider"])
	assert.NotContains(t, fields, "trace_id")
}

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seen string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "not_found", "NOT_FOUND" },
	}))
	r.GET("/fs/plan/:name", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		_ = c.Error(errors.New("missing"))
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fs/plan/gold", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/fs/plan/gold", nil)
	req.Header.Set(requestIDHeader, "given")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "given", seen)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "/fs/plan/:name", entries[0].ContextMap()["route"])
	assert.Equal(t, "not_found", entries[0].ContextMap()["error_type"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/fs/plan", 500, "internal_error"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", 200, ""))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/fs/authorized", 404, "not_found"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/fs/authorized", 200, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/fs/admin/reload", 429, "rate_limited"))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), 50*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT * FROM finance_users WHERE user_id = 'alice'", 1 }

	l.Trace(context.Background(), time.Now(), stmt, nil)
	assert.Zero(t, logs.Len(), "fast statements stay quiet at warn")

	l.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	l.Trace(context.Background(), time.Now(), stmt, gormlogger.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), stmt, errors.New("connection reset"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "select", entries[0].ContextMap()["table_op"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
