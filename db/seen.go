package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SeenDonations is a SeenStore backed by the seen_donations table, so
// announcements survive restarts without repeats.
type SeenDonations struct {
	DB            *sql.DB
	ParticipantID string
}

// MarkSeen inserts ids and returns those that were not already present, in
// input order.
func (s *SeenDonations) MarkSeen(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	var fresh []string
	for _, id := range ids {
		var inserted string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO seen_donations (participant_id, donation_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING RETURNING donation_id`, s.ParticipantID, id).Scan(&inserted)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mark donation %s: %w", id, err)
		}
		fresh = append(fresh, inserted)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return fresh, nil
}

// Count returns how many donations are recorded for the participant.
func (s *SeenDonations) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_donations WHERE participant_id = $1`, s.ParticipantID).Scan(&n)
	return n, err
}
