package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix and OAuth responses.
// Paths without a handler answer 404. Every request is counted by path.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand to a HelixClient.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// TokenURL is the OAuth token endpoint URL.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// Handle registers a handler for path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Calls returns how many requests hit path.
func (m *MockTwitchServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// TotalCalls returns the number of requests across all paths.
func (m *MockTwitchServer) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		if r.URL.Query().Get("login") == login {
			data = append(data, map[string]string{"id": userID, "login": login})
		}
		writeJSON(w, map[string]any{"data": data})
	})
}

// MockSearchCategoriesResponse adds a handler for /helix/search/categories.
// Each category is a {"id", "name"} pair.
func (m *MockTwitchServer) MockSearchCategoriesResponse(categories []map[string]string) {
	if categories == nil {
		categories = []map[string]string{}
	}
	m.Handle("/helix/search/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": categories})
	})
}

// MockUpdateChannel adds a handler for PATCH /helix/channels answering 204
// and passes each decoded body to record when it is non-nil.
func (m *MockTwitchServer) MockUpdateChannel(record func(broadcasterID, gameID string)) {
	m.Handle("/helix/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			GameID string `json:"game_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock
		if record != nil {
			record(r.URL.Query().Get("broadcaster_id"), body.GameID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	if streams == nil {
		streams = []map[string]interface{}{}
	}
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": streams})
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": "rotated-refresh",
			"expires_in":    expiresIn,
			"token_type":    "bearer",
		})
	})
}
