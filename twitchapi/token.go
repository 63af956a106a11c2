package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/extralife-helper/telemetry"
)

const (
	// SafetyMargin is subtracted from a credential's expiry before it is
	// considered usable, so a request never starts with a token about to lapse.
	SafetyMargin = 5 * time.Minute

	defaultRefreshTimeout = 15 * time.Second
)

// Credential is a user access token and the instant it stops being valid.
// Values are never mutated once cached.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// RefreshCredentials are the static inputs of a refresh_token grant.
type RefreshCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Complete reports whether all three values are set.
func (rc RefreshCredentials) Complete() bool {
	return rc.ClientID != "" && rc.ClientSecret != "" && rc.RefreshToken != ""
}

// RefreshFunc performs a refresh_token grant.
type RefreshFunc func(ctx context.Context, creds RefreshCredentials) (*RefreshResult, error)

// TokenProvider hands out a currently valid credential.
type TokenProvider interface {
	Get(ctx context.Context) (Credential, error)
}

// CredentialCache holds one user access token obtained through a refresh
// token and refreshes it when it is within SafetyMargin of expiring.
//
// Warm reads are a single atomic load. Refreshes go through a singleflight
// group so concurrent callers share one token-endpoint call. A refresh runs
// detached from the caller's cancellation and is bounded by its own timeout;
// callers whose context ends early stop waiting but do not abort it.
type CredentialCache struct {
	creds          RefreshCredentials
	refresh        RefreshFunc
	now            func() time.Time
	margin         time.Duration
	refreshTimeout time.Duration

	current atomic.Pointer[Credential]
	flight  singleflight.Group
}

// CacheOption customizes a CredentialCache.
type CacheOption func(*CredentialCache)

// WithRefreshFunc replaces the token endpoint call.
func WithRefreshFunc(fn RefreshFunc) CacheOption {
	return func(c *CredentialCache) { c.refresh = fn }
}

// WithTokenEndpoint refreshes against te instead of the default Twitch endpoint.
func WithTokenEndpoint(te *TokenEndpoint) CacheOption {
	return func(c *CredentialCache) { c.refresh = te.Refresh }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CredentialCache) { c.now = now }
}

// WithSafetyMargin overrides SafetyMargin.
func WithSafetyMargin(d time.Duration) CacheOption {
	return func(c *CredentialCache) { c.margin = d }
}

// WithRefreshTimeout bounds each token-endpoint call.
func WithRefreshTimeout(d time.Duration) CacheOption {
	return func(c *CredentialCache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// NewCredentialCache returns an empty cache; the first Get refreshes.
func NewCredentialCache(creds RefreshCredentials, opts ...CacheOption) *CredentialCache {
	c := &CredentialCache{
		creds:          creds,
		now:            time.Now,
		margin:         SafetyMargin,
		refreshTimeout: defaultRefreshTimeout,
	}
	c.refresh = (&TokenEndpoint{}).Refresh
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the configured client id.
func (c *CredentialCache) ClientID() string { return c.creds.ClientID }

// Get returns a credential valid for at least the safety margin, refreshing
// it first if needed. It fails with ErrAuthConfiguration when the refresh
// credentials are incomplete and with *AuthRefreshError when the refresh
// fails; a failed refresh leaves the cache untouched.
func (c *CredentialCache) Get(ctx context.Context) (Credential, error) {
	if !c.creds.Complete() {
		return Credential{}, ErrAuthConfiguration
	}
	if cur, ok := c.cached(); ok {
		return cur, nil
	}
	ch := c.flight.DoChan("refresh", func() (any, error) {
		// a flight that finished just before this one may have stored a token
		if cur, ok := c.cached(); ok {
			return cur, nil
		}
		return c.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

// Peek returns the cached credential without refreshing.
func (c *CredentialCache) Peek() (Credential, bool) {
	cur := c.current.Load()
	if cur == nil {
		return Credential{}, false
	}
	return *cur, true
}

func (c *CredentialCache) cached() (Credential, bool) {
	cur := c.current.Load()
	if cur == nil || cur.AccessToken == "" {
		return Credential{}, false
	}
	if !c.now().Before(cur.ExpiresAt.Add(-c.margin)) {
		return Credential{}, false
	}
	return *cur, true
}

func (c *CredentialCache) doRefresh(ctx context.Context) (Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	res, err := c.refresh(ctx, c.creds)
	if err != nil {
		telemetry.ObserveTokenRefresh("failure")
		var are *AuthRefreshError
		if !errors.As(err, &are) && !errors.Is(err, ErrAuthConfiguration) {
			err = &AuthRefreshError{Err: err}
		}
		slog.Warn("twitch credential refresh failed",
			slog.String("client_id", MaskClientID(c.creds.ClientID)),
			slog.Any("err", err),
			slog.String("component", "twitch_auth"))
		return Credential{}, err
	}
	if res == nil || res.AccessToken == "" {
		telemetry.ObserveTokenRefresh("failure")
		return Credential{}, &AuthRefreshError{Err: errEmptyAccessToken}
	}
	cred := &Credential{AccessToken: res.AccessToken, ExpiresAt: ComputeExpiry(c.now(), res.ExpiresIn)}
	c.current.Store(cred)
	telemetry.ObserveTokenRefresh("success")
	slog.Info("twitch credential refreshed",
		slog.String("client_id", MaskClientID(c.creds.ClientID)),
		slog.Time("expires_at", cred.ExpiresAt),
		slog.String("component", "twitch_auth"))
	return *cred, nil
}

// TokenSource adapts the cache to oauth2.TokenSource. ctx bounds every
// Token call made through it.
func (c *CredentialCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return cacheTokenSource{ctx: ctx, cache: c}
}

type cacheTokenSource struct {
	ctx   context.Context
	cache *CredentialCache
}

func (ts cacheTokenSource) Token() (*oauth2.Token, error) {
	cred, err := ts.cache.Get(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer", Expiry: cred.ExpiresAt}, nil
}

// MaskClientID keeps the first 8 characters of a client id for logging.
func MaskClientID(id string) string {
	if id == "" {
		return "undefined"
	}
	if len(id) <= 8 {
		return id + "..."
	}
	return id[:8] + "..."
}
