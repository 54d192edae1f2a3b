package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/peer"
	"github.com/smallbiznis/fedbill/internal/pricing"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// DateFormat is the date layout of the usage endpoint, in UTC.
const DateFormat = "2006-01-02_15:04:05"

const usagePath = "/accs/usage"

// Client fetches usage records.
type Client interface {
	GetUserRecords(ctx context.Context, p tenantdomain.Principal, start, end time.Time) ([]Record, error)
}

type Config struct {
	BaseURL       string
	LocalProvider string
}

type HTTPClient struct {
	cfg    Config
	client peer.Client
	tokens *peer.TokenSource
}

func NewHTTPClient(cfg Config, client peer.Client, tokens *peer.TokenSource) *HTTPClient {
	return &HTTPClient{cfg: cfg, client: client, tokens: tokens}
}

// GetUserRecords returns the compute and volume records of p between start and end.
func (c *HTTPClient) GetUserRecords(ctx context.Context, p tenantdomain.Principal, start, end time.Time) ([]Record, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + strings.Join([]string{
		usagePath,
		url.PathEscape(p.UserID),
		url.PathEscape(p.Provider),
		url.PathEscape(c.cfg.LocalProvider),
		url.PathEscape(start.UTC().Format(DateFormat)),
		url.PathEscape(end.UTC().Format(DateFormat)),
	}, "/")

	resp, err := peer.SendAuthorized(ctx, c.client, c.tokens, &peer.Request{
		Method:   http.MethodGet,
		URL:      endpoint,
		Endpoint: "usage",
		Headers:  map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	if err := peer.CheckStatus("accs", "usage", resp); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("could not acquire records of user %s", p).
			Mark(ierr.ErrHTTPClient)
	}

	var records []Record
	if err := json.Unmarshal(resp.Body, &records); err != nil {
		return nil, ierr.WithError(err).
			WithHint("accounting service returned malformed records").
			Mark(ierr.ErrHTTPClient)
	}
	return FilterBillable(records), nil
}

// FilterBillable keeps compute and volume records.
func FilterBillable(records []Record) []Record {
	return lo.Filter(records, func(r Record, _ int) bool {
		return r.ResourceType == pricing.ResourceTypeCompute || r.ResourceType == pricing.ResourceTypeVolume
	})
}
