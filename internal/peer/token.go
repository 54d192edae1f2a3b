package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"go.uber.org/zap"
)

const (
	DefaultTokenTTL = 30 * time.Minute

	tokenCacheKey = "service_token"
	tokensPath    = "/as/tokens"
)

// TokenSourceConfig holds the service credentials used against the
// authentication service.
type TokenSourceConfig struct {
	AuthURL  string
	Username string
	Password string
	TTL      time.Duration
}

// TokenSource fetches the service token and caches it until TTL or
// Invalidate, whichever comes first.
type TokenSource struct {
	client Client
	cfg    TokenSourceConfig
	cache  *gocache.Cache
	log    *zap.Logger

	// fetchMu keeps concurrent misses from hitting the auth service twice.
	fetchMu sync.Mutex
}

func NewTokenSource(client Client, cfg TokenSourceConfig, log *zap.Logger) *TokenSource {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSource{
		client: client,
		cfg:    cfg,
		cache:  gocache.New(cfg.TTL, 2*cfg.TTL),
		log:    log.Named("token_source"),
	}
}

type tokenRequest struct {
	Credentials map[string]string `json:"credentials"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token returns the cached token, fetching a new one on a miss.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if token, ok := s.cached(); ok {
		return token, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.cache.Set(tokenCacheKey, token, gocache.DefaultExpiration)
	return token, nil
}

// Invalidate drops the cached token, typically after a 401.
func (s *TokenSource) Invalidate() {
	s.cache.Delete(tokenCacheKey)
}

func (s *TokenSource) cached() (string, bool) {
	v, ok := s.cache.Get(tokenCacheKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	body, err := json.Marshal(tokenRequest{Credentials: map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	}})
	if err != nil {
		return "", ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := s.client.Send(ctx, &Request{
		Method:   http.MethodPost,
		URL:      strings.TrimRight(s.cfg.AuthURL, "/") + tokensPath,
		Endpoint: "tokens",
		Body:     body,
	})
	if err != nil {
		return "", err
	}
	if err := CheckStatus("as", "tokens", resp); err != nil {
		return "", err
	}

	var out tokenResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil || out.Token == "" {
		return "", ierr.NewError("authentication service returned no token").
			WithHint("service authentication failed").
			Mark(ierr.ErrHTTPClient)
	}
	s.log.Debug("service token refreshed")
	return out.Token, nil
}

// SendAuthorized sends req with the service token. A 401 invalidates the
// token and the request is sent once more with a fresh one.
func SendAuthorized(ctx context.Context, client Client, tokens *TokenSource, req *Request) (*Response, error) {
	resp, err := sendWithToken(ctx, client, tokens, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	tokens.Invalidate()
	return sendWithToken(ctx, client, tokens, req)
}

func sendWithToken(ctx context.Context, client Client, tokens *TokenSource, req *Request) (*Response, error) {
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[TokenHeader] = token

	signed := *req
	signed.Headers = headers
	return client.Send(ctx, &signed)
}
