package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

// CalledIDs returns the set of lead ids with at least one recorded call.
func (s *Store) CalledIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT osm_id FROM calls`)
	if err != nil {
		return nil, fmt.Errorf("query called ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan called id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate called ids: %w", err)
	}
	return ids, nil
}

// RecordOutcome appends a call to the history. Only recordable outcomes are
// accepted; callers treat Uncalled as "do not record" before getting here.
func (s *Store) RecordOutcome(ctx context.Context, leadID string, outcome domain.Outcome) (domain.CallRecord, error) {
	if !outcome.Recordable() {
		return domain.CallRecord{}, fmt.Errorf("%w: %q cannot be recorded", domain.ErrInvalidOutcome, outcome)
	}

	rec := domain.CallRecord{
		ID:       uuid.NewString(),
		LeadID:   leadID,
		Outcome:  outcome,
		CalledAt: domain.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, osm_id, outcome, called_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.LeadID, string(rec.Outcome), rec.CalledAt.Format(timestampLayout),
	)
	if err != nil {
		return domain.CallRecord{}, fmt.Errorf("insert call for %s: %w", leadID, err)
	}
	return rec, nil
}

// History lists the calls made to a lead, oldest first.
func (s *Store) History(ctx context.Context, leadID string) ([]domain.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, osm_id, outcome, called_at FROM calls WHERE osm_id = ? ORDER BY called_at, rowid`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query call history: %w", err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		var (
			rec      domain.CallRecord
			outcome  string
			calledAt string
		)
		if err := rows.Scan(&rec.ID, &rec.LeadID, &outcome, &calledAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		if rec.CalledAt, err = time.Parse(timestampLayout, calledAt); err != nil {
			return nil, fmt.Errorf("parse called_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call history: %w", err)
	}
	return out, nil
}
