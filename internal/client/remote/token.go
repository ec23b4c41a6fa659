package remote

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akulikov/securetext/internal/common"
)

// TokenSource supplies bearer tokens for the remote store. Token acquisition
// itself (OAuth dance, refresh grants) belongs to an external collaborator;
// this package only consumes tokens and decides when a cached one is spent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful for tests and
// for deployments where the gateway handles refresh itself.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", common.ErrNotAuthenticated
	}
	return string(t), nil
}

// expirySkew re-fetches a token slightly before its actual expiry so that a
// request never leaves with a token about to lapse mid-flight.
const expirySkew = 30 * time.Second

// CachingTokenSource caches a token obtained from a refresh callback and
// re-invokes the callback once the cached JWT is expired or nearly so.
type CachingTokenSource struct {
	refresh func(ctx context.Context) (string, error)

	mu    sync.Mutex
	token string

	now func() time.Time // test seam
}

func NewCachingTokenSource(refresh func(ctx context.Context) (string, error)) *CachingTokenSource {
	return &CachingTokenSource{refresh: refresh, now: time.Now}
}

// NewFileTokenSource reads the bearer token from a file maintained by an
// external refresher (a sidecar or a cron'd login helper). The file is
// re-read whenever the cached token expires, so a rotated token is picked
// up without restarting the client.
func NewFileTokenSource(path string) *CachingTokenSource {
	return NewCachingTokenSource(func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("token file %s is empty", path)
		}
		return token, nil
	})
}

func (c *CachingTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !c.expired(c.token) {
		return c.token, nil
	}

	token, err := c.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: refresh token: %v", common.ErrNotAuthenticated, err)
	}
	c.token = token
	return token, nil
}

// expired inspects the JWT exp claim without verifying the signature;
// verification is the remote store's job, the client only schedules refresh.
// Tokens that do not parse as JWTs or carry no expiry are treated as
// non-expiring.
func (c *CachingTokenSource) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return c.now().Add(expirySkew).After(exp.Time)
}
