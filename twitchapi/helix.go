// Package twitchapi contains minimal helpers to interact with the Twitch Helix
// API and OAuth token endpoint: channel id resolution, category search,
// channel category updates and stream lookups, authenticated with a cached
// user access token.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/extralife-helper/category"
	"github.com/onnwee/extralife-helper/telemetry"
)

// DefaultHelixBaseURL is the production Helix API root.
const DefaultHelixBaseURL = "https://api.twitch.tv/helix"

const defaultHelixTimeout = 10 * time.Second

// HelixClient issues single request/response calls against Helix. It never
// retries; failures are returned as *TransportError or wrap ErrNotFound.
type HelixClient struct {
	Tokens     TokenProvider
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixBaseURL
}

func (hc *HelixClient) timeout() time.Duration {
	if hc.Timeout > 0 {
		return hc.Timeout
	}
	return defaultHelixTimeout
}

// do performs one Helix call. When out is non-nil the response is decoded
// into it; an empty 2xx body is accepted unless requireBody is set.
func (hc *HelixClient) do(ctx context.Context, op, method, path string, query url.Values, payload, out any, requireBody bool) error {
	if hc.Tokens == nil {
		return ErrAuthConfiguration
	}
	cred, err := hc.Tokens.Get(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, hc.timeout())
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}
	u := hc.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	var resp *http.Response
	telemetry.TimeFunc(telemetry.HelixObserver(op), func() {
		resp, err = hc.http().Do(req)
	})
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if requireBody {
			return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
		}
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// GetUserID resolves a login name to its user (broadcaster) ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty: %w", category.ErrInvalidArgument)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "get user", http.MethodGet, "/users", url.Values{"login": {login}}, nil, &body, false); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("channel %q: %w", login, ErrNotFound)
	}
	return body.Data[0].ID, nil
}

// SearchCategories returns the catalog entries matching query, in Twitch's order.
func (hc *HelixClient) SearchCategories(ctx context.Context, query string) ([]category.Candidate, error) {
	var body struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "search categories", http.MethodGet, "/search/categories", url.Values{"query": {query}}, nil, &body, true); err != nil {
		return nil, err
	}
	out := make([]category.Candidate, 0, len(body.Data))
	for _, c := range body.Data {
		out = append(out, category.Candidate{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// UpdateChannelGame sets the channel's category. Twitch answers 204 on success.
func (hc *HelixClient) UpdateChannelGame(ctx context.Context, broadcasterID, gameID string) error {
	if broadcasterID == "" || gameID == "" {
		return fmt.Errorf("broadcasterID/gameID empty: %w", category.ErrInvalidArgument)
	}
	payload := map[string]string{"game_id": gameID}
	return hc.do(ctx, "update channel", http.MethodPatch, "/channels", url.Values{"broadcaster_id": {broadcasterID}}, payload, nil, false)
}

// Stream is the subset of /helix/streams used for viewer monitoring.
type Stream struct {
	UserLogin   string    `json:"user_login"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	Language    string    `json:"language"`
	StartedAt   time.Time `json:"started_at"`
}

// GetStream returns the live stream for login, or nil when the channel is offline.
func (hc *HelixClient) GetStream(ctx context.Context, login string) (*Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty: %w", category.ErrInvalidArgument)
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.do(ctx, "get streams", http.MethodGet, "/streams", url.Values{"user_login": {login}}, nil, &body, false); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}
