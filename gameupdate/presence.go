package gameupdate

import (
	"context"
	"log/slog"
	"sync"
)

// Activity is a platform-neutral rich presence entry.
type Activity struct {
	Name    string
	Playing bool
}

// GameFromActivities returns the name of the first playing activity, or ""
// when there is none.
func GameFromActivities(activities []Activity) string {
	for _, a := range activities {
		if a.Playing {
			return a.Name
		}
	}
	return ""
}

// PresenceHandler reacts to a change of the tracked user's game.
type PresenceHandler interface {
	HandlePresenceChange(ctx context.Context, oldGame, newGame string) (Result, error)
}

// PresenceTracker turns presence snapshots for one user into (old, new)
// game changes. Gateway events carry only the new state, so the last game
// seen is remembered here.
type PresenceTracker struct {
	UserID  string
	Handler PresenceHandler
	// OnApplied, if set, runs after a change was applied upstream.
	OnApplied func(ctx context.Context, res Result)

	mu   sync.Mutex
	last string
}

// Observe records a presence snapshot. Snapshots for other users and
// unchanged games are ignored and report false.
func (t *PresenceTracker) Observe(ctx context.Context, userID string, activities []Activity) (Result, bool) {
	if t.UserID == "" || userID != t.UserID {
		return Result{}, false
	}
	newGame := GameFromActivities(activities)

	t.mu.Lock()
	oldGame := t.last
	t.last = newGame
	t.mu.Unlock()

	if oldGame == newGame {
		return Result{}, false
	}
	slog.Info("Game change detected",
		slog.String("user_id", userID),
		slog.String("old_game", orNone(oldGame)),
		slog.String("new_game", orNone(newGame)),
		slog.String("component", "presence"))

	res, err := t.Handler.HandlePresenceChange(ctx, oldGame, newGame)
	if err != nil {
		slog.Error("Error handling presence update", slog.Any("err", err), slog.String("component", "presence"))
		return res, true
	}
	if res.Outcome == OutcomeApplied && t.OnApplied != nil {
		t.OnApplied(ctx, res)
	}
	return res, true
}

// Current returns the last game recorded for the tracked user.
func (t *PresenceTracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
