package extralife

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu          sync.Mutex
	participant *Participant
	donations   []Donation
	err         error
}

func (f *fakeSource) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := *f.participant
	return &p, nil
}

func (f *fakeSource) GetDonations(ctx context.Context, id string) ([]Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Donation(nil), f.donations...), nil
}

// prepend adds a donation at the head of the feed, as the API orders newest first.
func (f *fakeSource) prepend(d Donation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donations = append([]Donation{d}, f.donations...)
}

type recordingSink struct {
	mu   sync.Mutex
	anns []Announcement
	err  error
}

func (r *recordingSink) AnnounceDonation(ctx context.Context, a Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anns = append(r.anns, a)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.anns)
}

type summarySink struct {
	texts chan string
}

func (s *summarySink) UpdateSummary(ctx context.Context, text string) error {
	s.texts <- text
	return nil
}

func TestNewAnnouncement(t *testing.T) {
	tests := []struct {
		name        string
		d           Donation
		wantDiscord string
		wantTwitch  string
	}{
		{
			name:        "named with message",
			d:           Donation{DisplayName: "Carol", Amount: 50, Message: `For the "kids"`},
			wantDiscord: `Carol just donated $50.00 with the message "For the "kids""!`,
			wantTwitch:  `ExtraLife ExtraLife Carol just donated $50.00 with the message "For the "kids""! ExtraLife ExtraLife`,
		},
		{
			name:        "anonymous without message",
			d:           Donation{Amount: 1234.5},
			wantDiscord: "Anonymous just donated $1,234.50!",
			wantTwitch:  "ExtraLife ExtraLife Anonymous just donated $1,234.50! ExtraLife ExtraLife",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnnouncement(tt.d)
			if a.Discord != tt.wantDiscord {
				t.Errorf("Discord = %q, want %q", a.Discord, tt.wantDiscord)
			}
			if a.Twitch != tt.wantTwitch {
				t.Errorf("Twitch = %q, want %q", a.Twitch, tt.wantTwitch)
			}
		})
	}
}

func TestMemorySeenStore(t *testing.T) {
	s := NewMemorySeenStore()
	fresh, _ := s.MarkSeen(context.Background(), []string{"a", "b"})
	if len(fresh) != 2 {
		t.Errorf("first MarkSeen() = %v", fresh)
	}
	fresh, _ = s.MarkSeen(context.Background(), []string{"c", "a", "c"})
	if len(fresh) != 1 || fresh[0] != "c" {
		t.Errorf("second MarkSeen() = %v, want [c]", fresh)
	}
}

func TestAnnouncer_FirstPollSilentThenOldestFirst(t *testing.T) {
	src := &fakeSource{donations: []Donation{{DonationID: "A1", DisplayName: "Alice", Amount: 10}}}
	discord, twitch := &recordingSink{}, &recordingSink{}
	a := &Announcer{Source: src, ParticipantID: "1", Seen: NewMemorySeenStore(), Sinks: []Sink{discord, twitch}}
	ctx := context.Background()

	anns, err := a.Poll(ctx, true)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(anns) != 1 || discord.count() != 0 {
		t.Errorf("silent poll sent %d announcements", discord.count())
	}

	src.prepend(Donation{DonationID: "B2", DisplayName: "Bob", Amount: 20})
	src.prepend(Donation{DonationID: "C3", DisplayName: "Carol", Amount: 30})
	anns, err = a.Poll(ctx, false)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(anns) != 2 || anns[0].Donation.DonationID != "B2" || anns[1].Donation.DonationID != "C3" {
		t.Fatalf("Poll() = %+v, want B2 then C3", anns)
	}
	if discord.count() != 2 || twitch.count() != 2 {
		t.Errorf("sinks got %d/%d announcements, want 2/2", discord.count(), twitch.count())
	}

	anns, _ = a.Poll(ctx, false)
	if len(anns) != 0 || discord.count() != 2 {
		t.Errorf("repeat poll announced %d", len(anns))
	}
}

func TestAnnouncer_SinkErrorDoesNotStopOthers(t *testing.T) {
	src := &fakeSource{donations: []Donation{{DonationID: "A1", Amount: 10}}}
	broken, ok := &recordingSink{err: errors.New("boom")}, &recordingSink{}
	a := &Announcer{Source: src, ParticipantID: "1", Seen: NewMemorySeenStore(), Sinks: []Sink{broken, ok}}

	if _, err := a.Poll(context.Background(), false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if ok.count() != 1 {
		t.Errorf("healthy sink got %d announcements, want 1", ok.count())
	}
}

func TestAnnouncer_SourceError(t *testing.T) {
	a := &Announcer{Source: &fakeSource{err: errors.New("down")}, Seen: NewMemorySeenStore()}
	if _, err := a.Poll(context.Background(), false); err == nil {
		t.Error("Poll() should surface source errors")
	}
}

func TestAnnouncer_RefreshesSummaryAfterDelay(t *testing.T) {
	src := &fakeSource{
		participant: &Participant{DisplayName: "S", SumDonations: 500, FundraisingGoal: 1000},
		donations:   []Donation{{DonationID: "A1", Amount: 500}},
	}
	sink := &summarySink{texts: make(chan string, 1)}
	summary := &Summary{Source: src, ParticipantID: "1", Sink: sink}
	a := &Announcer{Source: src, ParticipantID: "1", Seen: NewMemorySeenStore(), Summary: summary, SummaryDelay: 10 * time.Millisecond}

	if _, err := a.Poll(context.Background(), false); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	select {
	case text := <-sink.texts:
		if text != "$500.00 (50%) Raised" {
			t.Errorf("summary = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("summary was not refreshed")
	}
	if last, _ := summary.Last(); last != "$500.00 (50%) Raised" {
		t.Errorf("Last() = %q", last)
	}
}

func TestAnnouncer_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{donations: []Donation{{DonationID: "A1", Amount: 1}}}
	sink := &recordingSink{}
	a := &Announcer{Source: src, ParticipantID: "1", Seen: NewMemorySeenStore(), Sinks: []Sink{sink}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	src.prepend(Donation{DonationID: "B2", Amount: 2})
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sink.count() != 1 || sink.anns[0].Donation.DonationID != "B2" {
		t.Errorf("announcements = %+v, want only B2", sink.anns)
	}
}

func TestSummary_Refresh(t *testing.T) {
	src := &fakeSource{participant: &Participant{SumDonations: 0, FundraisingGoal: 0}}
	text, err := (&Summary{Source: src, ParticipantID: "1"}).Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if text != "$0.00 (0%) Raised" {
		t.Errorf("Refresh() = %q", text)
	}

	src.err = errors.New("down")
	if _, err := (&Summary{Source: src}).Refresh(context.Background()); err == nil {
		t.Error("Refresh() should fail when the source does")
	}
}
