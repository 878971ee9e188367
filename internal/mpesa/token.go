package mpesa

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Tokens are refreshed this long before their reported expiry so a
// request never goes out with a credential about to lapse mid-flight.
const expiryMargin = 5 * time.Minute

// TokenProvider caches the gateway's client-credentials bearer token.
// Concurrent callers may race to refresh an expired token; the exchange
// is idempotent and the last writer wins, so the race is left unguarded
// beyond the cache mutex.
type TokenProvider struct {
	rest   *resty.Client
	key    string
	secret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func NewTokenProvider(rest *resty.Client, key, secret string) *TokenProvider {
	return &TokenProvider{rest: rest, key: key, secret: secret, now: time.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Token returns a cached bearer token, refreshing when it is within the
// expiry margin.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && p.now().Before(p.expiresAt.Add(-expiryMargin)) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	return p.Refresh(ctx)
}

// Refresh performs the client-credentials exchange and replaces the
// cached token.
func (p *TokenProvider) Refresh(ctx context.Context) (string, error) {
	var body tokenResponse
	resp, err := p.rest.R().
		SetContext(ctx).
		SetBasicAuth(p.key, p.secret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&body).
		Get("/oauth/v1/generate")
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token exchange: http status %d", resp.StatusCode())
	}
	if body.AccessToken == "" {
		return "", errors.New("token exchange: empty access token")
	}

	ttl := int64(3600)
	if v, err := strconv.ParseInt(body.ExpiresIn, 10, 64); err == nil && v > 0 {
		ttl = v
	}

	p.mu.Lock()
	p.token = body.AccessToken
	p.expiresAt = p.now().Add(time.Duration(ttl) * time.Second)
	p.mu.Unlock()

	return body.AccessToken, nil
}
