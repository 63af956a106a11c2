// Package oauth keeps the shared Twitch credential warm. A background loop
// asks the credential cache for a token on a jittered schedule so that a
// refresh usually happens here rather than inside a user-facing request.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/extralife-helper/twitchapi"
)

const (
	defaultInterval  = 5 * time.Minute
	maxInitialJitter = 10 * time.Second
	warmTimeout      = 15 * time.Second
)

// StartRefresher launches a goroutine that periodically calls tokens.Get.
// interval: how often to wake up; <= 0 means five minutes.
// Failures are logged and retried on the next tick.
func StartRefresher(ctx context.Context, tokens twitchapi.TokenProvider, interval time.Duration) {
	if tokens == nil {
		return
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	// Randomize initial delay to spread load across instances.
	initialJitter := jitterUpTo(min(interval/2, maxInitialJitter))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			if ctx.Err() != nil {
				return
			}
			warm(ctx, tokens)
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := interval / 5
			nextSleep := interval + jitterUpTo(2*jitterRange) - jitterRange
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

func warm(ctx context.Context, tokens twitchapi.TokenProvider) {
	ctx2, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()
	cred, err := tokens.Get(ctx2)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("token warm-up failed", slog.Any("err", err), slog.String("component", "twitch_auth"))
		return
	}
	slog.Debug("token warm", slog.Time("expires_at", cred.ExpiresAt), slog.String("component", "twitch_auth"))
}

func jitterUpTo(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	return time.Duration(rand.Int63n(int64(d)))
}
