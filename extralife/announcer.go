package extralife

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/extralife-helper/telemetry"
)

const defaultSummaryDelay = 5 * time.Second

// Source is the part of Client the announcer and summary need.
type Source interface {
	GetParticipant(ctx context.Context, participantID string) (*Participant, error)
	GetDonations(ctx context.Context, participantID string) ([]Donation, error)
}

// SeenStore remembers which donations were already handled.
type SeenStore interface {
	// MarkSeen records ids and returns those not seen before, in input order.
	MarkSeen(ctx context.Context, ids []string) ([]string, error)
}

// MemorySeenStore is a process-lifetime SeenStore.
type MemorySeenStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{seen: make(map[string]struct{})}
}

func (m *MemorySeenStore) MarkSeen(ctx context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fresh []string
	for _, id := range ids {
		if _, ok := m.seen[id]; ok {
			continue
		}
		m.seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh, nil
}

// Announcement is a new donation rendered for each platform.
type Announcement struct {
	Donation Donation
	Discord  string
	Twitch   string
}

// NewAnnouncement renders d.
func NewAnnouncement(d Donation) Announcement {
	text := fmt.Sprintf("%s just donated %s", d.Donor(), FormatMoney(d.Amount))
	if d.Message != "" {
		text += ` with the message "` + d.Message + `"`
	}
	return Announcement{
		Donation: d,
		Discord:  text + "!",
		Twitch:   "ExtraLife ExtraLife " + text + "! ExtraLife ExtraLife",
	}
}

// Sink delivers announcements to one platform.
type Sink interface {
	AnnounceDonation(ctx context.Context, a Announcement) error
}

// Announcer polls for new donations and fans them out to every sink.
type Announcer struct {
	Source        Source
	ParticipantID string
	Seen          SeenStore
	Sinks         []Sink
	// Summary, if set, is refreshed SummaryDelay after new donations.
	Summary      *Summary
	SummaryDelay time.Duration
}

// Poll fetches donations and announces the unseen ones oldest first. When
// silent is set they are only marked as seen.
func (a *Announcer) Poll(ctx context.Context, silent bool) ([]Announcement, error) {
	ds, err := a.Source.GetDonations(ctx, a.ParticipantID)
	if err != nil {
		telemetry.IncDonationPollErrors()
		return nil, err
	}
	byID := make(map[string]Donation, len(ds))
	ids := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.DonationID == "" {
			continue
		}
		byID[d.DonationID] = d
		ids = append(ids, d.DonationID)
	}
	fresh, err := a.Seen.MarkSeen(ctx, ids)
	if err != nil {
		telemetry.IncDonationPollErrors()
		return nil, fmt.Errorf("mark donations seen: %w", err)
	}

	// feed is newest first
	out := make([]Announcement, 0, len(fresh))
	for i := len(fresh) - 1; i >= 0; i-- {
		d := byID[fresh[i]]
		out = append(out, NewAnnouncement(d))
		slog.Info("Donation",
			slog.String("donor", d.Donor()),
			slog.String("amount", FormatMoney(d.Amount)),
			slog.String("message", d.Message),
			slog.Bool("silent", silent),
			slog.String("component", "extralife"))
	}
	if silent || len(out) == 0 {
		return out, nil
	}

	for _, ann := range out {
		for _, s := range a.Sinks {
			if err := s.AnnounceDonation(ctx, ann); err != nil {
				slog.Warn("donation announcement failed", slog.String("donation_id", ann.Donation.DonationID), slog.Any("err", err), slog.String("component", "extralife"))
			}
		}
	}
	telemetry.AddDonationsAnnounced(len(out))

	if a.Summary != nil {
		delay := a.SummaryDelay
		if delay <= 0 {
			delay = defaultSummaryDelay
		}
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if _, err := a.Summary.Refresh(ctx); err != nil {
				slog.Warn("summary refresh failed", slog.Any("err", err), slog.String("component", "extralife"))
			}
		}()
	}
	return out, nil
}

// Run polls every interval until ctx ends. The first poll is silent so a
// restart does not repeat earlier announcements.
func (a *Announcer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if _, err := a.Poll(ctx, true); err != nil {
		slog.Error("Error getting Donations", slog.Any("err", err), slog.String("component", "extralife"))
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := a.Poll(ctx, false); err != nil {
			slog.Error("Error getting Donations", slog.Any("err", err), slog.String("component", "extralife"))
		}
	}
}

// SummarySink displays the running total, e.g. as a channel name.
type SummarySink interface {
	UpdateSummary(ctx context.Context, text string) error
}

// Summary keeps the running total display current.
type Summary struct {
	Source        Source
	ParticipantID string
	Sink          SummarySink

	mu   sync.Mutex
	last string
	at   time.Time
}

// Refresh fetches the participant and pushes the summary text to Sink.
func (s *Summary) Refresh(ctx context.Context) (string, error) {
	p, err := s.Source.GetParticipant(ctx, s.ParticipantID)
	if err != nil {
		return "", err
	}
	text := SummaryText(p)
	telemetry.SetFundraising(p.SumDonations, p.FundraisingGoal)
	s.mu.Lock()
	s.last, s.at = text, time.Now()
	s.mu.Unlock()
	if s.Sink == nil {
		return text, nil
	}
	slog.Info("Updating Discord status", slog.String("summary", text), slog.String("component", "extralife"))
	if err := s.Sink.UpdateSummary(ctx, text); err != nil {
		return text, fmt.Errorf("update summary: %w", err)
	}
	return text, nil
}

// Last returns the most recent summary text and when it was computed.
func (s *Summary) Last() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.at
}
