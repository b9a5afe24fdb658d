package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

const insertLead = `
INSERT INTO leads (
    osm_id, name, industry, address, phone, phone_e164, email_or_social,
    opened_on, newness_days, postcode, income_tier, lead_score, demo_link,
    lat, lon, first_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (osm_id) DO NOTHING`

// InsertIfAbsent stores leads whose id is not already present. Existing rows
// are left untouched. It returns how many rows were inserted.
func (s *Store) InsertIfAbsent(ctx context.Context, leads []domain.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert leads: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertLead)
	if err != nil {
		return 0, fmt.Errorf("prepare insert lead: %w", err)
	}
	defer stmt.Close()

	seenAt := domain.Now().Format(timestampLayout)
	inserted := 0
	for i := range leads {
		l := &leads[i]
		res, err := stmt.ExecContext(ctx,
			l.ID, l.Name, l.Industry, l.Address, l.Phone, l.PhoneE164, l.EmailOrSocial,
			l.OpenedOn.UTC().Format(time.RFC3339), l.NewnessDays, l.Postcode, string(l.IncomeTier),
			l.LeadScore, l.DemoLink, l.Lat, l.Lon, seenAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert lead %s: %w", l.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert lead %s: %w", l.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert leads: %w", err)
	}
	return inserted, nil
}

// Lead returns a stored lead as it was first seen.
func (s *Store) Lead(ctx context.Context, id string) (domain.Lead, error) {
	const q = `
SELECT osm_id, name, industry, address, phone, phone_e164, email_or_social,
       opened_on, newness_days, postcode, income_tier, lead_score, demo_link, lat, lon
FROM leads WHERE osm_id = ?`

	var (
		l        domain.Lead
		openedOn string
		tier     string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&l.ID, &l.Name, &l.Industry, &l.Address, &l.Phone, &l.PhoneE164, &l.EmailOrSocial,
		&openedOn, &l.NewnessDays, &l.Postcode, &tier, &l.LeadScore, &l.DemoLink, &l.Lat, &l.Lon,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("query lead %s: %w", id, err)
	}

	l.IncomeTier = domain.IncomeTier(tier)
	l.TelLink = domain.TelLink(l.PhoneE164)
	if l.OpenedOn, err = time.Parse(time.RFC3339, openedOn); err != nil {
		return domain.Lead{}, fmt.Errorf("parse opened_on for %s: %w", id, err)
	}
	return l, nil
}

// CountLeads returns the number of stored leads.
func (s *Store) CountLeads(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}
