package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/extralife-helper/gameupdate"
	"github.com/onnwee/extralife-helper/telemetry"
	"github.com/onnwee/extralife-helper/twitchapi"
)

// Categories runs and reports category updates.
type Categories interface {
	Apply(ctx context.Context, title string) (gameupdate.Result, error)
	Last() (gameupdate.Result, bool)
}

// CredentialPeeker exposes the cached Twitch credential without refreshing it.
type CredentialPeeker interface {
	Peek() (twitchapi.Credential, bool)
}

// SummaryReader reports the last fundraising summary.
type SummaryReader interface {
	Last() (string, time.Time)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers. Nil dependencies turn
// the matching checks and fields off.
type Handlers struct {
	Categories Categories
	Summary    SummaryReader
	// Tokens is checked by /readyz when game updates are configured. Readiness
	// only inspects the cache; refreshing is left to the warm-up loop.
	Tokens     CredentialPeeker
	DB         Pinger
	AdminToken string
	Version    string
}

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with dependency checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	var checks []struct {
		name string
		fn   func() error
	}
	if h.DB != nil {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"database", func() error { return h.DB.PingContext(r.Context()) }})
	}
	if h.Tokens != nil {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"credentials", func() error {
			cred, ok := h.Tokens.Peek()
			switch {
			case !ok || cred.AccessToken == "":
				return errors.New("no credential cached yet")
			case !time.Now().Before(cred.ExpiresAt):
				return errors.New("cached credential expired")
			}
			return nil
		}})
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type categoryStatus struct {
	Outcome       string    `json:"outcome"`
	State         string    `json:"state"`
	Game          string    `json:"game"`
	Query         string    `json:"query,omitempty"`
	CategoryID    string    `json:"category_id,omitempty"`
	CategoryName  string    `json:"category_name,omitempty"`
	Tier          string    `json:"tier,omitempty"`
	BroadcasterID string    `json:"broadcaster_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

func newCategoryStatus(res gameupdate.Result) categoryStatus {
	cs := categoryStatus{
		Outcome:       res.Outcome.String(),
		State:         res.State.String(),
		Game:          res.Game,
		Query:         res.Query,
		BroadcasterID: res.BroadcasterID,
		At:            res.At,
	}
	if res.Match.Found() {
		cs.CategoryID = res.Match.Candidate.ID
		cs.CategoryName = res.Match.Candidate.Name
		cs.Tier = res.Match.Tier.String()
	}
	if res.Err != nil {
		cs.Error = res.Err.Error()
	}
	return cs
}

type summaryStatus struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// HandleStatus returns the last category outcome and the last summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"version": h.Version, "tracing": telemetry.IsTracingEnabled()}
	if h.Categories != nil {
		if res, ok := h.Categories.Last(); ok {
			out["category"] = newCategoryStatus(res)
		}
	}
	if h.Summary != nil {
		if text, at := h.Summary.Last(); text != "" {
			out["summary"] = summaryStatus{Text: text, At: at}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAdminCategory runs the coordinator for {"game": "..."}.
func (h *Handlers) HandleAdminCategory(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
	if h.Categories == nil {
		http.Error(w, "game updates not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Game string `json:"game"`
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	res, err := h.Categories.Apply(r.Context(), strings.TrimSpace(body.Game))
	if err != nil {
		log.Error("admin category update failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if res.Outcome == gameupdate.OutcomeFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, newCategoryStatus(res))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}
