package ras

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/peer"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rasServer struct {
	mu     sync.Mutex
	paths  []string
	status map[string]int
}

func (s *rasServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/as/tokens", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tkn"}`))
	})
	mux.HandleFunc("/ras/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.Method+" "+r.URL.Path)
		code, ok := s.status[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			code = http.StatusOK
		}
		w.WriteHeader(code)
	})
	return mux
}

func newTestClient(t *testing.T, status map[string]int) (*Client, *rasServer) {
	t.Helper()
	ras := &rasServer{status: status}
	srv := httptest.NewServer(ras.handler())
	t.Cleanup(srv.Close)

	httpClient := peer.NewClient(peer.ClientConfig{Peer: "ras"}, nil, zap.NewNop())
	tokens := peer.NewTokenSource(httpClient, peer.TokenSourceConfig{AuthURL: srv.URL}, zap.NewNop())
	return NewClient(Config{BaseURL: srv.URL + "/"}, httpClient, tokens, zap.NewNop()), ras
}

func TestClientPaths(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t, nil)
	p := tenantdomain.Principal{UserID: "u1", Provider: "prov"}

	require.NoError(t, client.HibernateResourcesByUser(ctx, p))
	require.NoError(t, client.StopResourcesByUser(ctx, p))
	require.NoError(t, client.ResumeResourcesByUser(ctx, p))
	require.NoError(t, client.PauseResourcesByUser(ctx, p))
	require.NoError(t, client.PurgeUser(ctx, p))

	assert.Equal(t, []string{
		"POST /ras/computes/hibernate/u1/prov",
		"POST /ras/computes/stop/u1/prov",
		"POST /ras/computes/resume/u1/prov",
		"POST /ras/computes/pause/u1/prov",
		"POST /ras/admin/purge/u1/prov",
	}, srv.paths)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, map[string]int{
		"/ras/computes/hibernate/u1/prov": http.StatusNotImplemented,
		"/ras/computes/resume/u1/prov":    http.StatusInternalServerError,
	})
	p := tenantdomain.Principal{UserID: "u1", Provider: "prov"}

	err := client.HibernateResourcesByUser(ctx, p)
	assert.True(t, ierr.IsNotSupported(err))

	err = client.ResumeResourcesByUser(ctx, p)
	assert.True(t, ierr.IsHTTPClient(err))
	assert.False(t, ierr.IsNotSupported(err))
}

func TestFakeClient(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient()
	p := tenantdomain.Principal{UserID: "u1", Provider: "prov"}

	fake.NotSupported(ActionHibernate)
	assert.True(t, ierr.IsNotSupported(fake.HibernateResourcesByUser(ctx, p)))
	assert.NoError(t, fake.StopResourcesByUser(ctx, p))

	fake.Fail(ActionHibernate, nil)
	assert.NoError(t, fake.HibernateResourcesByUser(ctx, p))
	assert.Equal(t, []string{ActionHibernate, ActionStop, ActionHibernate}, fake.Actions())
}
