package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTokenURL is the Twitch OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// RefreshResult represents the response from a refresh_token grant.
type RefreshResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
	ExpiresIn    int      `json:"expires_in"`
}

// ComputeExpiry returns absolute expiry time from seconds, defaulting to +60m when unknown.
func ComputeExpiry(now time.Time, seconds int) time.Time {
	if seconds <= 0 {
		return now.Add(60 * time.Minute)
	}
	return now.Add(time.Duration(seconds) * time.Second)
}

var errEmptyAccessToken = errors.New("empty access_token in twitch response")

// TokenEndpoint performs refresh_token grants against an OAuth token URL.
type TokenEndpoint struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// RefreshToken exchanges a refresh token for a new access token using the
// default Twitch endpoint.
func RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*RefreshResult, error) {
	return (&TokenEndpoint{}).Refresh(ctx, RefreshCredentials{ClientID: clientID, ClientSecret: clientSecret, RefreshToken: refreshToken})
}

// Refresh posts a form-encoded refresh_token grant. Every failure, including
// timeouts, is returned as *AuthRefreshError.
func (te *TokenEndpoint) Refresh(ctx context.Context, creds RefreshCredentials) (*RefreshResult, error) {
	if !creds.Complete() {
		return nil, ErrAuthConfiguration
	}
	if te.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, te.Timeout)
		defer cancel()
	}
	endpoint := te.URL
	if endpoint == "" {
		endpoint = DefaultTokenURL
	}
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthRefreshError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := te.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &AuthRefreshError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &AuthRefreshError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthRefreshError{StatusCode: resp.StatusCode, Message: upstreamMessage(b)}
	}
	var res RefreshResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, &AuthRefreshError{StatusCode: resp.StatusCode, Message: truncateBody(b), Err: err}
	}
	if res.AccessToken == "" {
		return nil, &AuthRefreshError{Err: errEmptyAccessToken}
	}
	return &res, nil
}

// upstreamMessage pulls the human readable message out of a Twitch error body,
// falling back to the truncated raw body.
func upstreamMessage(b []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return truncateBody(b)
}
