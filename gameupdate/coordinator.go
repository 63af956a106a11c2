// Package gameupdate mirrors the game a tracked user is playing onto the
// Twitch channel category.
//
// A Coordinator run walks Idle -> ResolvingCredential -> ResolvingIdentity ->
// Searching -> Applying -> Done. Any failure ends in Failed and a search
// without a usable candidate ends in NoMatchFound; both are logged and
// reported through the returned Result, never as an error. Only wiring bugs
// surface as errors (category.ErrInvalidArgument).
package gameupdate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/extralife-helper/category"
	"github.com/onnwee/extralife-helper/telemetry"
	"github.com/onnwee/extralife-helper/twitchapi"
)

// JustChatting is used when no game is being played.
const JustChatting = "Just Chatting"

const defaultUpdateTimeout = 30 * time.Second

// State is a step of a coordinator run.
type State int

const (
	StateIdle State = iota
	StateResolvingCredential
	StateResolvingIdentity
	StateSearching
	StateApplying
	StateDone
	StateNoMatchFound
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolvingCredential:
		return "resolving_credential"
	case StateResolvingIdentity:
		return "resolving_identity"
	case StateSearching:
		return "searching"
	case StateApplying:
		return "applying"
	case StateDone:
		return "done"
	case StateNoMatchFound:
		return "no_match_found"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Outcome summarizes a run for callers and metrics.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeApplied
	OutcomeNoMatch
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result describes one run. Err is set only for OutcomeFailed and has
// already been logged.
type Result struct {
	Outcome       Outcome
	State         State
	Game          string
	Query         string
	Match         category.Match
	BroadcasterID string
	Err           error
	At            time.Time
}

// Helix is the part of the Helix API a run needs.
type Helix interface {
	GetUserID(ctx context.Context, login string) (string, error)
	SearchCategories(ctx context.Context, query string) ([]category.Candidate, error)
	UpdateChannelGame(ctx context.Context, broadcasterID, gameID string) error
}

// Coordinator updates the category of Channel. It is safe for concurrent
// use; independent runs do not cancel or order each other.
type Coordinator struct {
	Helix     Helix
	Tokens    twitchapi.TokenProvider
	Channel   string
	ClientID  string
	Overrides *category.Overrides
	// Timeout bounds a whole run. Defaults to 30s.
	Timeout time.Duration
	// RejectFallback turns a TierFallback match into NoMatchFound.
	RejectFallback bool

	last atomic.Pointer[Result]
}

// Last returns the most recent non-skipped result.
func (c *Coordinator) Last() (Result, bool) {
	r := c.last.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// HandlePresenceChange applies newGame when it differs from oldGame. An
// empty string means no game. The run is detached from ctx cancellation so
// a newer event never aborts an older one.
func (c *Coordinator) HandlePresenceChange(ctx context.Context, oldGame, newGame string) (Result, error) {
	if strings.TrimSpace(oldGame) == strings.TrimSpace(newGame) {
		return Result{Outcome: OutcomeSkipped, State: StateIdle, Game: displayName(newGame), At: time.Now()}, nil
	}
	return c.Apply(context.WithoutCancel(ctx), newGame)
}

// Apply sets the channel category to the best match for title. An empty
// title selects JustChatting.
func (c *Coordinator) Apply(ctx context.Context, title string) (Result, error) {
	if c == nil || c.Helix == nil || c.Tokens == nil || c.Channel == "" {
		return Result{}, fmt.Errorf("gameupdate: coordinator not configured: %w", category.ErrInvalidArgument)
	}
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	game := displayName(title)
	ctx, span := telemetry.StartSpan(ctx, "gameupdate", "category.update", telemetry.CategoryAttrs(c.Channel, game)...)
	defer span.End()

	start := time.Now()
	res, err := c.run(ctx, game)
	res.At = time.Now()
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	if res.Err != nil {
		telemetry.RecordError(span, res.Err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	telemetry.ObserveCategoryUpdate(res.Outcome.String(), time.Since(start))
	c.last.Store(&res)
	return res, nil
}

func (c *Coordinator) run(ctx context.Context, game string) (Result, error) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "game_update"))
	res := Result{Game: game, Query: game, State: StateIdle}
	clientID := twitchapi.MaskClientID(c.ClientID)

	fail := func(err error) (Result, error) {
		log.Error("Error updating Twitch channel game",
			slog.String("game", game),
			slog.String("channel", c.Channel),
			slog.String("client_id", clientID),
			slog.String("state", res.State.String()),
			slog.Any("err", err))
		res.State = StateFailed
		res.Outcome = OutcomeFailed
		res.Err = err
		return res, nil
	}

	log.Info("Updating Twitch channel game",
		slog.String("game", game),
		slog.String("channel", c.Channel),
		slog.String("client_id", clientID))

	res.State = StateResolvingCredential
	if _, err := c.Tokens.Get(ctx); err != nil {
		return fail(err)
	}

	res.State = StateResolvingIdentity
	broadcasterID, err := c.Helix.GetUserID(ctx, c.Channel)
	if err != nil {
		return fail(err)
	}
	res.BroadcasterID = broadcasterID

	if o, ok := c.Overrides.Lookup(game); ok {
		log.Info("Using game override",
			slog.String("original_game", game),
			slog.String("override_category", o.Category))
		res.Query = o.Category
	}

	res.State = StateSearching
	candidates, err := c.Helix.SearchCategories(ctx, res.Query)
	if err != nil {
		return fail(err)
	}
	match, err := category.Resolve(&category.MatchRequest{Target: res.Query, Candidates: candidates})
	if err != nil {
		return res, err
	}
	res.Match = match
	if !match.Found() || (match.Weak() && c.RejectFallback) {
		log.Warn("Game category not found on Twitch",
			slog.String("game", game),
			slog.String("query", res.Query),
			slog.Int("candidates", len(candidates)))
		res.State = StateNoMatchFound
		res.Outcome = OutcomeNoMatch
		return res, nil
	}

	res.State = StateApplying
	if err := c.Helix.UpdateChannelGame(ctx, broadcasterID, match.Candidate.ID); err != nil {
		return fail(err)
	}

	res.State = StateDone
	res.Outcome = OutcomeApplied
	log.Info("Successfully updated Twitch channel game",
		slog.String("game", game),
		slog.String("game_id", match.Candidate.ID),
		slog.String("category", match.Candidate.Name),
		slog.String("tier", match.Tier.String()),
		slog.String("broadcaster_id", broadcasterID),
		slog.String("channel", c.Channel))
	return res, nil
}

func displayName(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return JustChatting
}
