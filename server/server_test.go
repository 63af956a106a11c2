package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/extralife-helper/category"
	"github.com/onnwee/extralife-helper/gameupdate"
	"github.com/onnwee/extralife-helper/twitchapi"
)

type fakeCategories struct {
	last   *gameupdate.Result
	titles []string
	err    error
}

func (f *fakeCategories) Apply(ctx context.Context, title string) (gameupdate.Result, error) {
	f.titles = append(f.titles, title)
	if f.err != nil {
		return gameupdate.Result{}, f.err
	}
	res := gameupdate.Result{
		Outcome: gameupdate.OutcomeApplied,
		State:   gameupdate.StateDone,
		Game:    title,
		Query:   title,
		Match:   category.Match{Candidate: category.Candidate{ID: "27471", Name: title}, Tier: category.TierExact},
		At:      time.Now(),
	}
	f.last = &res
	return res, nil
}

func (f *fakeCategories) Last() (gameupdate.Result, bool) {
	if f.last == nil {
		return gameupdate.Result{}, false
	}
	return *f.last, true
}

type fakeSummary struct{ text string }

func (f fakeSummary) Last() (string, time.Time) { return f.text, time.Unix(1700000000, 0) }

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

type fakeTokens struct{ cred *twitchapi.Credential }

func (f fakeTokens) Peek() (twitchapi.Credential, bool) {
	if f.cred == nil {
		return twitchapi.Credential{}, false
	}
	return *f.cred, true
}

var validCred = &twitchapi.Credential{AccessToken: "x", ExpiresAt: time.Now().Add(time.Hour)}

func serve(t *testing.T, h *Handlers, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rr := httptest.NewRecorder()
	NewMux(ctx, h).ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	rr := serve(t, &Handlers{}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestCorrelationHeaderReused(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := serve(t, &Handlers{}, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		h          *Handlers
		wantCode   int
		wantFailed string
	}{
		{"nothing configured", &Handlers{}, http.StatusOK, ""},
		{"all healthy", &Handlers{DB: fakePinger{}, Tokens: fakeTokens{cred: validCred}}, http.StatusOK, ""},
		{"database down", &Handlers{DB: fakePinger{err: errors.New("conn refused")}, Tokens: fakeTokens{cred: validCred}}, http.StatusServiceUnavailable, "database"},
		{"credential not cached", &Handlers{Tokens: fakeTokens{}}, http.StatusServiceUnavailable, "credentials"},
		{"credential expired", &Handlers{Tokens: fakeTokens{cred: &twitchapi.Credential{AccessToken: "x", ExpiresAt: time.Now().Add(-time.Minute)}}}, http.StatusServiceUnavailable, "credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, tt.h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantCode {
				t.Fatalf("readyz = %d, want %d; body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["failed_check"] != tt.wantFailed {
				t.Errorf("failed_check = %q, want %q", resp["failed_check"], tt.wantFailed)
			}
		})
	}
}

func TestReadyzDoesNotRefresh(t *testing.T) {
	var refreshes atomic.Int32
	cache := twitchapi.NewCredentialCache(twitchapi.RefreshCredentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"},
		twitchapi.WithRefreshFunc(func(ctx context.Context, creds twitchapi.RefreshCredentials) (*twitchapi.RefreshResult, error) {
			refreshes.Add(1)
			return &twitchapi.RefreshResult{AccessToken: "fresh", ExpiresIn: 3600}, nil
		}))
	h := &Handlers{Tokens: cache}

	for i := 0; i < 3; i++ {
		rr := serve(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("cold readyz = %d, want 503", rr.Code)
		}
	}
	if n := refreshes.Load(); n != 0 {
		t.Fatalf("refreshes after cold probes = %d, want 0", n)
	}

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	rr := serve(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("warm readyz = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
}

func TestStatus(t *testing.T) {
	cats := &fakeCategories{}
	h := &Handlers{Categories: cats, Summary: fakeSummary{text: "$500.00 (50%) Raised"}, Version: "test"}

	rr := serve(t, h, httptest.NewRequest(http.MethodGet, "/status", nil))
	var resp map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["category"]; ok {
		t.Error("category present before any update")
	}
	if string(resp["tracing"]) != "false" {
		t.Errorf("tracing = %s, want false without an OTLP endpoint", resp["tracing"])
	}
	if !strings.Contains(string(resp["summary"]), "$500.00 (50%) Raised") {
		t.Errorf("summary = %s", resp["summary"])
	}

	_, _ = cats.Apply(context.Background(), "Minecraft")
	rr = serve(t, h, httptest.NewRequest(http.MethodGet, "/status", nil))
	var resp2 struct {
		Category categoryStatus `json:"category"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp2.Category.Outcome != "applied" || resp2.Category.CategoryID != "27471" {
		t.Errorf("category = %+v", resp2.Category)
	}
}

func adminRequest(body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/category", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	return req
}

func TestAdminCategory(t *testing.T) {
	tests := []struct {
		name      string
		h         *Handlers
		req       *http.Request
		wantCode  int
		wantTitle string
	}{
		{"no token configured", &Handlers{Categories: &fakeCategories{}}, adminRequest(`{"game":"Minecraft"}`, "secret"), http.StatusForbidden, ""},
		{"missing header", &Handlers{Categories: &fakeCategories{}, AdminToken: "secret"}, adminRequest(`{"game":"Minecraft"}`, ""), http.StatusUnauthorized, ""},
		{"wrong token", &Handlers{Categories: &fakeCategories{}, AdminToken: "secret"}, adminRequest(`{"game":"Minecraft"}`, "nope"), http.StatusUnauthorized, ""},
		{"bad json", &Handlers{Categories: &fakeCategories{}, AdminToken: "secret"}, adminRequest(`{"game":`, "secret"), http.StatusBadRequest, ""},
		{"not configured", &Handlers{AdminToken: "secret"}, adminRequest(`{"game":"Minecraft"}`, "secret"), http.StatusServiceUnavailable, ""},
		{"applied", &Handlers{Categories: &fakeCategories{}, AdminToken: "secret"}, adminRequest(`{"game":" Minecraft "}`, "secret"), http.StatusOK, "Minecraft"},
		{"wiring error", &Handlers{Categories: &fakeCategories{err: category.ErrInvalidArgument}, AdminToken: "secret"}, adminRequest(`{"game":"Minecraft"}`, "secret"), http.StatusInternalServerError, "Minecraft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, tt.h, tt.req)
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d; body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if cats, ok := tt.h.Categories.(*fakeCategories); ok && tt.wantTitle != "" {
				if len(cats.titles) != 1 || cats.titles[0] != tt.wantTitle {
					t.Errorf("titles = %v, want [%s]", cats.titles, tt.wantTitle)
				}
			}
		})
	}
}

func TestAdminCategoryMethod(t *testing.T) {
	rr := serve(t, &Handlers{AdminToken: "secret"}, httptest.NewRequest(http.MethodGet, "/admin/category", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /admin/category = %d, want 405", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := serve(t, &Handlers{}, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("metrics = %d", rr.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, &Handlers{}) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
