package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokenSkew is how long before expiry a cached access token stops being
// reused.
const tokenSkew = 60 * time.Second

// TokenResolver returns usable Google access tokens for sheets targets,
// refreshing them with the stored refresh token when needed.
type TokenResolver struct {
	secrets    Secrets
	conf       *oauth2.Config
	httpClient *http.Client
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type TokenResolverOption func(*TokenResolver)

// WithEndpoint overrides the Google OAuth endpoint.
func WithEndpoint(ep oauth2.Endpoint) TokenResolverOption {
	return func(r *TokenResolver) { r.conf.Endpoint = ep }
}

func WithHTTPClient(c *http.Client) TokenResolverOption {
	return func(r *TokenResolver) { r.httpClient = c }
}

func withClock(now func() time.Time) TokenResolverOption {
	return func(r *TokenResolver) { r.now = now }
}

func NewTokenResolver(clientID, clientSecret string, secrets Secrets, opts ...TokenResolverOption) *TokenResolver {
	r := &TokenResolver{
		secrets: secrets,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
		},
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TokenResolver) lock(targetID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[targetID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[targetID] = l
	}
	return l
}

// Resolve returns an access token for the target. It mutates o in place when
// a refresh happens and reports that through changed. force skips the cached
// token.
func (r *TokenResolver) Resolve(ctx context.Context, targetID string, o *SheetsOAuth, force bool) (token string, changed bool, err error) {
	l := r.lock(targetID)
	l.Lock()
	defer l.Unlock()

	if !force && o.AccessToken != nil && o.AccessTokenExpiresAt != nil && r.now().Before(o.AccessTokenExpiresAt.Add(-tokenSkew)) {
		token, err := r.secrets.Decrypt(o.AccessToken)
		if err == nil {
			return token, false, nil
		}
		slog.WarnContext(ctx, "cached access token unreadable, refreshing", "target_id", targetID, "error", err)
	}

	refresh, err := r.secrets.Decrypt(&o.RefreshToken)
	if err != nil {
		return "", false, fmt.Errorf("decrypt refresh token: %w", err)
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", false, fmt.Errorf("refresh access token: %w", err)
	}

	access, err := r.secrets.Encrypt(tok.AccessToken)
	if err != nil {
		return "", false, fmt.Errorf("encrypt access token: %w", err)
	}
	o.AccessToken = access
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		o.AccessTokenExpiresAt = &expiry
	} else {
		o.AccessTokenExpiresAt = nil
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		rotated, err := r.secrets.Encrypt(tok.RefreshToken)
		if err != nil {
			return "", false, fmt.Errorf("encrypt refresh token: %w", err)
		}
		o.RefreshToken = *rotated
		slog.InfoContext(ctx, "refresh token rotated", "target_id", targetID)
	}

	slog.InfoContext(ctx, "access token refreshed", "target_id", targetID, "forced", force)
	return tok.AccessToken, true, nil
}
