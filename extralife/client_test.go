package extralife

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const participantJSON = `{"participantID":12345,"displayName":"Test Streamer","sumDonations":1234.5,"fundraisingGoal":2500,"numDonations":3}`

const donationsJSON = `[
	{"donationID":"C3","displayName":"Carol","amount":50,"message":"Go go go","createdDateUTC":"2024-11-02T15:03:00.000+0000"},
	{"donationID":"B2","amount":25,"createdDateUTC":"2024-11-02T15:02:00.000+0000"},
	{"donationID":"A1","displayName":"Alice","amount":10.5,"createdDateUTC":"2024-11-02T15:01:00.000+0000"}
]`

func newDonorDriveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/participants/12345", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(participantJSON))
	})
	mux.HandleFunc("/api/participants/12345/donations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(donationsJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetParticipant(t *testing.T) {
	srv := newDonorDriveServer(t)
	c := &Client{BaseURL: srv.URL + "/api/"}

	p, err := c.GetParticipant(context.Background(), "12345")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if p.DisplayName != "Test Streamer" || p.SumDonations != 1234.5 || p.FundraisingGoal != 2500 {
		t.Errorf("GetParticipant() = %+v", p)
	}
	if _, err := c.GetParticipant(context.Background(), ""); err == nil {
		t.Error("GetParticipant(\"\") should fail")
	}
}

func TestClient_GetDonations(t *testing.T) {
	srv := newDonorDriveServer(t)
	ds, err := (&Client{BaseURL: srv.URL + "/api"}).GetDonations(context.Background(), "12345")
	if err != nil {
		t.Fatalf("GetDonations() error = %v", err)
	}
	if len(ds) != 3 || ds[0].DonationID != "C3" || ds[1].Donor() != "Anonymous" {
		t.Errorf("GetDonations() = %+v", ds)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := newDonorDriveServer(t)
	c := &Client{BaseURL: srv.URL + "/api"}

	_, err := c.GetParticipant(context.Background(), "999")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetParticipant(999) error = %v, want 404 APIError", err)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	_, err = (&Client{BaseURL: slow.URL, Timeout: 20 * time.Millisecond}).GetDonations(context.Background(), "1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout error = %v, want deadline exceeded", err)
	}
}

func TestClient_Snapshot(t *testing.T) {
	srv := newDonorDriveServer(t)
	c := &Client{BaseURL: srv.URL + "/api"}

	snap, err := c.Snapshot(context.Background(), "12345")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Participant.DisplayName != "Test Streamer" || len(snap.Donations) != 3 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if _, err := c.Snapshot(context.Background(), "999"); err == nil {
		t.Error("Snapshot() for unknown participant should fail")
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{5, "$5.00"},
		{10.5, "$10.50"},
		{1234.5, "$1,234.50"},
		{1234567.891, "$1,234,567.89"},
		{-20, "-$20.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.in); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentComplete(t *testing.T) {
	tests := []struct {
		sum, goal float64
		want      int
	}{
		{1234.5, 2500, 49},
		{1250, 2500, 50},
		{3000, 2500, 120},
		{100, 0, 0},
	}
	for _, tt := range tests {
		p := &Participant{SumDonations: tt.sum, FundraisingGoal: tt.goal}
		if got := p.PercentComplete(); got != tt.want {
			t.Errorf("PercentComplete(%v/%v) = %d, want %d", tt.sum, tt.goal, got, tt.want)
		}
	}
}

func TestMessages(t *testing.T) {
	p := &Participant{DisplayName: "Test Streamer", SumDonations: 1234.5, FundraisingGoal: 2500}
	if got, want := GoalMessage(p), "Test Streamer has raised $1,234.50 out of $2,500.00 (49%)"; got != want {
		t.Errorf("GoalMessage() = %q, want %q", got, want)
	}
	if got, want := SummaryText(p), "$1,234.50 (49%) Raised"; got != want {
		t.Errorf("SummaryText() = %q, want %q", got, want)
	}
}
