package peer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// TokenHeader carries the service token on every peer request.
const TokenHeader = "Fogbow-User-Token"

// Request represents an HTTP request to a peer service.
type Request struct {
	Method string
	URL    string
	// Endpoint is a low-cardinality name of the call, used for metrics.
	Endpoint string
	Headers  map[string]string
	Body     []byte
}

// Response represents a peer response of any status.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client sends requests to peer services.
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type ClientConfig struct {
	Peer     string
	RetryMax int
	Timeout  time.Duration
}

// RetryingClient implements Client on top of go-retryablehttp. Transport
// errors and 5xx answers are retried up to RetryMax times.
type RetryingClient struct {
	peer    string
	client  *retryablehttp.Client
	metrics *metrics.Metrics
}

func NewClient(cfg ClientConfig, m *metrics.Metrics, log *zap.Logger) *RetryingClient {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = &leveledLogger{log: log.Named("peer").With(zap.String("peer", cfg.Peer)).Sugar()}
	// Hand the final response back instead of a synthetic error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &RetryingClient{peer: cfg.Peer, client: client, metrics: m}
}

// Send makes an HTTP request and returns the response whatever its status.
func (c *RetryingClient) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("invalid %s request", c.peer).
			Mark(ierr.ErrHTTPClient)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	correlation.InjectHeader(ctx, httpReq.Header)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.metrics.RecordPeerCall(ctx, c.peer, req.Endpoint, 0)
		return nil, ierr.WithError(err).
			WithHintf("%s is unreachable", c.peer).
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()
	c.metrics.RecordPeerCall(ctx, c.peer, req.Endpoint, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to read %s response", c.peer).
			Mark(ierr.ErrHTTPClient)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

// IsSuccess reports a 2xx status.
func IsSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
