package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"go.uber.org/zap"
)

const verifiedTTL = 5 * time.Minute

var (
	ErrMissingToken = ierr.NewError("missing bearer token").Mark(ierr.ErrUnauthenticated)
	ErrInvalidToken = ierr.NewError("invalid admin token").Mark(ierr.ErrUnauthenticated)
)

// Verifier authenticates "Bearer <name>.<secret>" headers against the
// configured admin token hashes.
type Verifier struct {
	tokens   map[string]string
	verified *cache.Cache
	log      *zap.Logger
}

func NewVerifier(cfg config.Config, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	tokens := make(map[string]string, len(cfg.AdminTokens))
	for name, hash := range cfg.AdminTokens {
		tokens[name] = hash
	}
	return &Verifier{
		tokens:   tokens,
		verified: cache.New(verifiedTTL, 2*verifiedTTL),
		log:      log.Named("credential"),
	}
}

// ParseBearer splits an Authorization header value into token name and secret.
func ParseBearer(header string) (string, string, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return "", "", ErrMissingToken
	}
	name, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || name == "" || secret == "" {
		return "", "", ErrInvalidToken
	}
	return name, secret, nil
}

// Authenticate returns the token name when the header carries a valid secret.
// Successful verifications are cached so argon2 runs once per token per TTL.
func (v *Verifier) Authenticate(header string) (string, error) {
	name, secret, err := ParseBearer(header)
	if err != nil {
		return "", err
	}
	key := fingerprint(name, secret)
	if cached, ok := v.verified.Get(key); ok {
		return cached.(string), nil
	}

	hash, ok := v.tokens[name]
	if !ok || !Verify(secret, hash) {
		v.log.Debug("admin token rejected", zap.String("token_name", name))
		return "", ErrInvalidToken
	}
	v.verified.SetDefault(key, name)
	return name, nil
}

func fingerprint(name, secret string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + secret))
	return hex.EncodeToString(sum[:])
}
