// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CategoryUpdates    *prometheus.CounterVec // label: outcome
	TokenRefreshes     *prometheus.CounterVec // label: result
	DonationsAnnounced prometheus.Counter
	DonationPollErrors prometheus.Counter
	CommandsHandled    *prometheus.CounterVec // labels: platform, command

	// Histograms (seconds)
	CategoryUpdateDuration prometheus.Observer
	HelixRequestDuration   *prometheus.HistogramVec // label: op

	// Gauges
	ViewerCountGauge prometheus.Gauge
	StreamLiveGauge  prometheus.Gauge // 1=live,0=offline
	FundsRaisedGauge prometheus.Gauge
	FundraisingGoal  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CategoryUpdates = promauto.NewCounterVec(prometheus.CounterOpts{Name: "extralife_category_updates_total", Help: "Twitch category update attempts by outcome"}, []string{"outcome"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "extralife_twitch_token_refreshes_total", Help: "Twitch user token refreshes by result"}, []string{"result"})
		DonationsAnnounced = promauto.NewCounter(prometheus.CounterOpts{Name: "extralife_donations_announced_total", Help: "Number of donations announced"})
		DonationPollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "extralife_donation_poll_errors_total", Help: "Number of failed donation polls"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "extralife_commands_total", Help: "Chat commands handled"}, []string{"platform", "command"})
		CategoryUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "extralife_category_update_duration_seconds", Help: "Category update duration seconds", Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}})
		HelixRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "extralife_helix_request_duration_seconds", Help: "Twitch Helix round trip seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}}, []string{"op"})
		ViewerCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "extralife_stream_viewers", Help: "Current stream viewer count"})
		StreamLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "extralife_stream_live", Help: "Stream live=1 offline=0"})
		FundsRaisedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "extralife_funds_raised_dollars", Help: "Total raised by the participant"})
		FundraisingGoal = promauto.NewGauge(prometheus.GaugeOpts{Name: "extralife_fundraising_goal_dollars", Help: "Participant fundraising goal"})
	})
}

// ObserveCategoryUpdate counts one coordinator run.
func ObserveCategoryUpdate(outcome string, d time.Duration) {
	if CategoryUpdates != nil {
		CategoryUpdates.WithLabelValues(outcome).Inc()
	}
	if CategoryUpdateDuration != nil {
		CategoryUpdateDuration.Observe(d.Seconds())
	}
}

// HelixObserver returns the latency observer for one Helix operation, or nil
// before Init.
func HelixObserver(op string) prometheus.Observer {
	if HelixRequestDuration == nil {
		return nil
	}
	return HelixRequestDuration.WithLabelValues(op)
}

// ObserveTokenRefresh counts one token-endpoint call.
func ObserveTokenRefresh(result string) {
	if TokenRefreshes != nil {
		TokenRefreshes.WithLabelValues(result).Inc()
	}
}

// AddDonationsAnnounced records n announced donations.
func AddDonationsAnnounced(n int) {
	if DonationsAnnounced != nil && n > 0 {
		DonationsAnnounced.Add(float64(n))
	}
}

// IncDonationPollErrors records a failed poll.
func IncDonationPollErrors() {
	if DonationPollErrors != nil {
		DonationPollErrors.Inc()
	}
}

// ObserveCommand counts a handled chat command.
func ObserveCommand(platform, command string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(platform, command).Inc()
	}
}

// SetStream records the live state and viewer count.
func SetStream(live bool, viewers int) {
	if StreamLiveGauge != nil {
		if live {
			StreamLiveGauge.Set(1)
		} else {
			StreamLiveGauge.Set(0)
		}
	}
	if ViewerCountGauge != nil {
		ViewerCountGauge.Set(float64(viewers))
	}
}

// SetFundraising records the running total and goal.
func SetFundraising(raised, goal float64) {
	if FundsRaisedGauge != nil {
		FundsRaisedGauge.Set(raised)
	}
	if FundraisingGoal != nil {
		FundraisingGoal.Set(goal)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
