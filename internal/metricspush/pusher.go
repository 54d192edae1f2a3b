package metricspush

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "remote_write"
	ExporterPushgateway = "pushgateway"
	defaultPushTimeout  = 5 * time.Second
)

// Pusher sends the runner metrics to an external collector.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher builds a pusher from cfg. A missing exporter disables pushing
// and returns nil.
func NewPusher(cfg config.MetricsPushConfig, job, environment string, logger *zap.Logger) (Pusher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if exporter == "" {
		logger.Debug("metrics push disabled")
		return nil, nil
	}
	if endpoint == "" {
		return nil, ierr.NewError("metrics push endpoint is required").
			WithHint("set METRICS_PUSH_ENDPOINT").
			Mark(ierr.ErrValidation)
	}

	switch exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, ierr.WithError(err).WithHint("invalid METRICS_PUSH_ENDPOINT").Mark(ierr.ErrValidation)
		}
		return NewRemoteWritePusher(endpoint, cfg.AuthToken), nil
	case ExporterPushgateway:
		return NewPushgatewayPusher(endpoint, job, map[string]string{
			"environment": strings.TrimSpace(environment),
		}), nil
	default:
		return nil, ierr.NewErrorf("unknown metrics push exporter %q", exporter).
			WithHint("exporter must be remote_write or pushgateway").
			Mark(ierr.ErrValidation)
	}
}

// RemoteWritePusher sends metrics to a Prometheus remote_write endpoint.
type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// NewRemoteWritePusher returns a pusher for Prometheus remote_write.
func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		httpClient: &http.Client{
			Timeout: defaultPushTimeout,
		},
	}
}

// Push gathers the registry and sends one snappy-compressed WriteRequest.
// An empty registry sends nothing.
func (p *RemoteWritePusher) Push(ctx context.Context, registry prometheus.Gatherer) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return ierr.WithError(err).WithHint("failed to gather runner metrics").Mark(ierr.ErrInternal)
	}
	series := encodeFamilies(families, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}
	body, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	return p.send(ctx, snappy.Encode(nil, body))
}

func (p *RemoteWritePusher) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ierr.WithError(err).WithHint("remote write unreachable").Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return ierr.NewErrorf("remote write returned %s", resp.Status).Mark(ierr.ErrHTTPClient)
	}
	return nil
}

// PushgatewayPusher sends metrics to a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

// NewPushgatewayPusher returns a pusher for Prometheus Pushgateway.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

// Push sends the current registry metrics to the Pushgateway.
func (p *PushgatewayPusher) Push(ctx context.Context, registry prometheus.Gatherer) error {
	if p == nil || registry == nil {
		return nil
	}
	if strings.TrimSpace(p.endpoint) == "" {
		return ierr.NewError("pushgateway endpoint is required").Mark(ierr.ErrValidation)
	}
	if p.job == "" {
		return ierr.NewError("pushgateway job is required").Mark(ierr.ErrValidation)
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return pusher.PushContext(ctx)
}

// encodeFamilies flattens gathered families into remote_write series.
// Histograms become the usual _bucket, _sum and _count series so the tick
// duration histogram survives the trip; summaries are not used by fedbill
// and are skipped.
func encodeFamilies(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	add := func(name string, m *dto.Metric, value float64, extra ...prompb.Label) {
		labels := make([]prompb.Label, 0, len(m.GetLabel())+len(extra)+1)
		labels = append(labels, prompb.Label{Name: "__name__", Value: name})
		for _, l := range m.GetLabel() {
			labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
		}
		labels = append(labels, extra...)
		sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
		out = append(out, prompb.TimeSeries{
			Labels:  labels,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				if c := m.GetCounter(); c != nil {
					add(name, m, c.GetValue())
				}
			case dto.MetricType_GAUGE:
				if g := m.GetGauge(); g != nil {
					add(name, m, g.GetValue())
				}
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				if h == nil {
					continue
				}
				for _, b := range h.GetBucket() {
					le := strconv.FormatFloat(b.GetUpperBound(), 'g', -1, 64)
					add(name+"_bucket", m, float64(b.GetCumulativeCount()), prompb.Label{Name: "le", Value: le})
				}
				add(name+"_bucket", m, float64(h.GetSampleCount()), prompb.Label{Name: "le", Value: "+Inf"})
				add(name+"_sum", m, h.GetSampleSum())
				add(name+"_count", m, float64(h.GetSampleCount()))
			}
		}
	}
	return out
}
