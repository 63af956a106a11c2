// Package extralife reads participant totals and donations from the Extra Life
// (DonorDrive) public API and turns them into chat announcements.
package extralife

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultBaseURL is the public DonorDrive API root for Extra Life.
const DefaultBaseURL = "https://www.extra-life.org/api"

const defaultTimeout = 10 * time.Second

// Participant is the fundraising summary of one participant.
type Participant struct {
	ParticipantID   int64   `json:"participantID"`
	DisplayName     string  `json:"displayName"`
	SumDonations    float64 `json:"sumDonations"`
	FundraisingGoal float64 `json:"fundraisingGoal"`
	NumDonations    int     `json:"numDonations"`
}

// PercentComplete returns the rounded share of the goal raised. A zero goal
// yields 0.
func (p *Participant) PercentComplete() int {
	if p == nil || p.FundraisingGoal <= 0 {
		return 0
	}
	return int(math.Round(p.SumDonations / p.FundraisingGoal * 100))
}

// Donation is one entry of a participant's donation feed.
type Donation struct {
	DonationID     string  `json:"donationID"`
	DisplayName    string  `json:"displayName"`
	Amount         float64 `json:"amount"`
	Message        string  `json:"message"`
	CreatedDateUTC string  `json:"createdDateUTC"`
}

// Donor returns the display name or "Anonymous".
func (d Donation) Donor() string {
	if n := strings.TrimSpace(d.DisplayName); n != "" {
		return n
	}
	return "Anonymous"
}

// Snapshot is a participant summary and its donations fetched together.
type Snapshot struct {
	Participant *Participant
	Donations   []Donation
}

// Client is a minimal DonorDrive client. The zero value talks to DefaultBaseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// APIError is a non-2xx DonorDrive response.
type APIError struct {
	Op         string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extralife %s: status %d", e.Op, e.StatusCode)
}

// GetParticipant fetches the participant summary.
func (c *Client) GetParticipant(ctx context.Context, participantID string) (*Participant, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant id empty")
	}
	var p Participant
	if err := c.get(ctx, "get participant", "/participants/"+url.PathEscape(participantID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetDonations fetches the most recent donations, newest first.
func (c *Client) GetDonations(ctx context.Context, participantID string) ([]Donation, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant id empty")
	}
	var ds []Donation
	if err := c.get(ctx, "get donations", "/participants/"+url.PathEscape(participantID)+"/donations", &ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Snapshot fetches the participant and donations concurrently.
func (c *Client) Snapshot(ctx context.Context, participantID string) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.GetParticipant(gctx, participantID)
		snap.Participant = p
		return err
	})
	g.Go(func() error {
		ds, err := c.GetDonations(gctx, participantID)
		snap.Donations = ds
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return fmt.Errorf("extralife %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("extralife %s: %w", op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &APIError{Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("extralife %s: decode: %w", op, err)
	}
	return nil
}

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatMoney renders amount as US dollars with grouping, e.g. $1,234.50.
func FormatMoney(amount float64) string {
	if amount < 0 {
		return "-" + usd.Sprintf("$%.2f", -amount)
	}
	return usd.Sprintf("$%.2f", amount)
}

// GoalMessage is the reply to the goal command.
func GoalMessage(p *Participant) string {
	return fmt.Sprintf("%s has raised %s out of %s (%d%%)",
		p.DisplayName, FormatMoney(p.SumDonations), FormatMoney(p.FundraisingGoal), p.PercentComplete())
}

// SummaryText is the running total shown as the summary channel name.
func SummaryText(p *Participant) string {
	return fmt.Sprintf("%s (%d%%) Raised", FormatMoney(p.SumDonations), p.PercentComplete())
}
