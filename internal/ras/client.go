// Package ras talks to the resource allocation service that owns tenants'
// compute resources.
package ras

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/peer"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/zap"
)

const peerName = "ras"

// Actions as they appear in request paths.
const (
	ActionHibernate = "hibernate"
	ActionStop      = "stop"
	ActionResume    = "resume"
	ActionPause     = "pause"
	ActionPurge     = "purge"
)

type Config struct {
	BaseURL string
}

// Client acts on every resource of a tenant at once.
type Client struct {
	cfg    Config
	client peer.Client
	tokens *peer.TokenSource
	log    *zap.Logger
}

func NewClient(cfg Config, client peer.Client, tokens *peer.TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: client,
		tokens: tokens,
		log:    log.Named("ras"),
	}
}

func (c *Client) HibernateResourcesByUser(ctx context.Context, p tenantdomain.Principal) error {
	return c.computes(ctx, ActionHibernate, p)
}

func (c *Client) StopResourcesByUser(ctx context.Context, p tenantdomain.Principal) error {
	return c.computes(ctx, ActionStop, p)
}

func (c *Client) ResumeResourcesByUser(ctx context.Context, p tenantdomain.Principal) error {
	return c.computes(ctx, ActionResume, p)
}

func (c *Client) PauseResourcesByUser(ctx context.Context, p tenantdomain.Principal) error {
	return c.computes(ctx, ActionPause, p)
}

// PurgeUser deletes every resource of p.
func (c *Client) PurgeUser(ctx context.Context, p tenantdomain.Principal) error {
	return c.post(ctx, ActionPurge, c.url("/ras/admin/purge", p))
}

func (c *Client) computes(ctx context.Context, action string, p tenantdomain.Principal) error {
	return c.post(ctx, action, c.url("/ras/computes/"+action, p))
}

func (c *Client) url(prefix string, p tenantdomain.Principal) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + prefix + "/" +
		url.PathEscape(p.UserID) + "/" + url.PathEscape(p.Provider)
}

func (c *Client) post(ctx context.Context, action, endpoint string) error {
	resp, err := peer.SendAuthorized(ctx, c.client, c.tokens, &peer.Request{
		Method:   http.MethodPost,
		URL:      endpoint,
		Endpoint: action,
		Headers:  map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return err
	}
	if err := peer.CheckStatus(peerName, action, resp); err != nil {
		if !ierr.IsNotSupported(err) {
			c.log.Warn("resource manager call failed",
				zap.String("action", action),
				zap.Int("status_code", resp.StatusCode),
			)
		}
		return err
	}
	return nil
}
