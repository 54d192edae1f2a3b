package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/peer"
	"github.com/smallbiznis/fedbill/internal/pricing"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func at(sec int64) time.Time {
	return time.UnixMilli(sec * 1000).UTC()
}

func record(changes ...StateChange) Record {
	return Record{
		OrderID:      "order-1",
		ResourceType: pricing.ResourceTypeCompute,
		Spec:         Spec{VCPU: 2, RAM: 4096},
		History:      changes,
	}
}

func TestHistoryOnPeriod(t *testing.T) {
	fulfilled := pricing.OrderStateFulfilled
	paused := pricing.OrderStatePaused
	closed := pricing.OrderStateClosed

	tests := []struct {
		name    string
		history []StateChange
		start   int64
		end     int64
		want    []StateChange
	}{
		{
			name:    "created inside window and still running",
			history: []StateChange{{at(10), fulfilled}},
			start:   0,
			end:     30,
			want:    []StateChange{{at(10), fulfilled}, {at(30), fulfilled}},
		},
		{
			name:    "running before window",
			history: []StateChange{{at(0), fulfilled}},
			start:   100,
			end:     130,
			want:    []StateChange{{at(100), fulfilled}, {at(130), fulfilled}},
		},
		{
			name:    "closed inside window",
			history: []StateChange{{at(0), fulfilled}, {at(30), closed}},
			start:   0,
			end:     31,
			want:    []StateChange{{at(0), fulfilled}, {at(30), closed}},
		},
		{
			name:    "state changes inside window",
			history: []StateChange{{at(0), fulfilled}, {at(15), paused}, {at(40), fulfilled}},
			start:   10,
			end:     50,
			want:    []StateChange{{at(10), fulfilled}, {at(15), paused}, {at(40), fulfilled}, {at(50), fulfilled}},
		},
		{
			name:    "closed before window",
			history: []StateChange{{at(0), fulfilled}, {at(5), closed}},
			start:   10,
			end:     20,
			want:    []StateChange{{at(10), closed}},
		},
		{
			name:    "starts after window",
			history: []StateChange{{at(40), fulfilled}},
			start:   0,
			end:     30,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := record(tt.history...).HistoryOnPeriod(at(tt.start), at(tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryOnPeriodWithoutHistory(t *testing.T) {
	_, err := record().HistoryOnPeriod(at(0), at(10))
	assert.True(t, ierr.IsValidation(err))
}

func TestRecordItem(t *testing.T) {
	item, err := record().Item()
	require.NoError(t, err)
	assert.Equal(t, pricing.ComputeItem{VCPU: 2, RAM: 4096}, item)

	vol := Record{ResourceType: pricing.ResourceTypeVolume, Spec: Spec{Size: 50}}
	item, err = vol.Item()
	require.NoError(t, err)
	assert.Equal(t, pricing.VolumeItem{Size: 50}, item)

	_, err = Record{ResourceType: "network"}.Item()
	assert.True(t, ierr.IsValidation(err))
}

func TestRecordJSON(t *testing.T) {
	payload := `[{"id":7,"orderId":"o-1","resourceType":"compute","spec":{"vCpu":2,"ram":1024},
		"startTime":0,"stateHistory":{"history":{"30000":"CLOSED","0":"FULFILLED"}}}]`

	var records []Record
	require.NoError(t, json.Unmarshal([]byte(payload), &records))
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "o-1", r.OrderID)
	assert.Equal(t, []StateChange{{at(0), pricing.OrderStateFulfilled}, {at(30), pricing.OrderStateClosed}}, r.History)
	assert.True(t, r.EndTime.IsZero())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, r, back)
}

func TestHTTPClientGetUserRecords(t *testing.T) {
	var usagePaths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/as/tokens", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tkn"}`))
	})
	mux.HandleFunc("/accs/usage/", func(w http.ResponseWriter, r *http.Request) {
		usagePaths = append(usagePaths, r.URL.Path)
		assert.Equal(t, "tkn", r.Header.Get(peer.TokenHeader))
		_, _ = w.Write([]byte(`[
			{"orderId":"c","resourceType":"compute","spec":{"vCpu":1,"ram":1},"stateHistory":{"history":{"0":"fulfilled"}}},
			{"orderId":"n","resourceType":"network","stateHistory":{"history":{"0":"fulfilled"}}},
			{"orderId":"v","resourceType":"volume","spec":{"size":10},"stateHistory":{"history":{"0":"fulfilled"}}}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpClient := peer.NewClient(peer.ClientConfig{Peer: "accs"}, nil, zap.NewNop())
	tokens := peer.NewTokenSource(httpClient, peer.TokenSourceConfig{AuthURL: srv.URL}, zap.NewNop())
	client := NewHTTPClient(Config{BaseURL: srv.URL, LocalProvider: "local"}, httpClient, tokens)

	p := tenantdomain.Principal{UserID: "u1", Provider: "prov"}
	records, err := client.GetUserRecords(context.Background(), p, at(0), at(30))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].OrderID)
	assert.Equal(t, "v", records[1].OrderID)
	require.Len(t, usagePaths, 1)
	assert.Equal(t, "/accs/usage/u1/prov/local/1970-01-01_00:00:00/1970-01-01_00:00:30", usagePaths[0])
}

func TestHTTPClientFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/as/tokens", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tkn"}`))
	})
	mux.HandleFunc("/accs/usage/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpClient := peer.NewClient(peer.ClientConfig{Peer: "accs"}, nil, zap.NewNop())
	tokens := peer.NewTokenSource(httpClient, peer.TokenSourceConfig{AuthURL: srv.URL}, zap.NewNop())
	client := NewHTTPClient(Config{BaseURL: srv.URL, LocalProvider: "local"}, httpClient, tokens)

	_, err := client.GetUserRecords(context.Background(), tenantdomain.Principal{UserID: "u1", Provider: "p"}, at(0), at(1))
	require.Error(t, err)
	assert.True(t, ierr.IsHTTPClient(err))
}
