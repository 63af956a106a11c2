// Package viewers polls Twitch stream status for the configured channel and
// records it in logs and the viewer gauge.
package viewers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/extralife-helper/telemetry"
	"github.com/onnwee/extralife-helper/twitchapi"
)

// DefaultInterval applies when Monitor.Interval is unset.
const DefaultInterval = 5 * time.Minute

// StreamSource fetches the live stream for a login; nil means offline.
type StreamSource interface {
	GetStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

// Status is the outcome of one poll.
type Status struct {
	Live   bool
	Stream twitchapi.Stream
	At     time.Time
}

// Monitor polls one channel.
type Monitor struct {
	Source   StreamSource
	Channel  string
	Interval time.Duration
}

// Check polls once, logging and recording the result.
func (m *Monitor) Check(ctx context.Context) (Status, error) {
	st := Status{At: time.Now()}
	stream, err := m.Source.GetStream(ctx, m.Channel)
	if err != nil {
		slog.Error("Error getting viewer count", slog.String("channel", m.Channel), slog.Any("err", err), slog.String("component", "viewers"))
		return st, err
	}
	if stream == nil {
		telemetry.SetStream(false, 0)
		slog.Info("Stream offline", slog.String("channel", m.Channel), slog.String("component", "viewers"))
		return st, nil
	}
	st.Live, st.Stream = true, *stream
	telemetry.SetStream(true, stream.ViewerCount)
	slog.Info("Viewer count",
		slog.String("channel", m.Channel),
		slog.Int("viewers", stream.ViewerCount),
		slog.String("game", stream.GameName),
		slog.String("title", stream.Title),
		slog.String("language", stream.Language),
		slog.Time("started_at", stream.StartedAt),
		slog.String("component", "viewers"))
	return st, nil
}

// Run checks once immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.Source == nil || m.Channel == "" {
		slog.Info("viewer monitor: channel or helix client missing; abort", slog.String("component", "viewers"))
		return
	}
	every := m.Interval
	if every <= 0 {
		every = DefaultInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	slog.Info("viewer monitor: started poller", slog.Duration("interval", every), slog.String("component", "viewers"))
	for {
		if _, err := m.Check(ctx); err != nil && errors.Is(err, context.Canceled) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
