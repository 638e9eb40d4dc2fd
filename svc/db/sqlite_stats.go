package db

import (
	"context"
	"database/sql"
	"time"

	"pasteor/pkg/domain"

	"github.com/pkg/errors"
)

// UserStats aggregates over the full set of the user's pastes. The
// most-viewed tie on views is broken by earliest created_at, then id.
func (s *SQLite) UserStats(ctx context.Context, userID int64, now time.Time) (*domain.UserStats, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stats := &domain.UserStats{}
	err := s.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*), COALESCE(SUM(views), 0) FROM pastes WHERE user_id = ?`,
		userID,
	).Scan(&stats.TotalPastes, &stats.TotalViews)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db user totals")
	}

	err = s.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM pastes WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		userID, now,
	).Scan(&stats.ActivePastes)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db active count")
	}

	var mostViewed string
	err = s.db.QueryRowContext(queryCtx,
		`SELECT id FROM pastes WHERE user_id = ? ORDER BY views DESC, created_at ASC, id ASC LIMIT 1`,
		userID,
	).Scan(&mostViewed)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db most viewed")
	}
	stats.MostViewedPasteID = &mostViewed
	return stats, nil
}

// UserLanguages includes expired pastes; expiry only hides content from
// user-facing reads, not from the owner's own aggregates.
func (s *SQLite) UserLanguages(ctx context.Context, userID int64) ([]string, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(queryCtx,
		`SELECT DISTINCT language FROM pastes WHERE user_id = ? ORDER BY language ASC`,
		userID,
	)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db user languages")
	}
	defer rows.Close()
	var langs []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, errors.Wrap(err, "scan language")
		}
		langs = append(langs, l)
	}
	return langs, errors.Wrap(rows.Err(), "iterate languages")
}

func (s *SQLite) CountPastes(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM pastes`)
}

func (s *SQLite) CountUsers(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM users`)
}

func (s *SQLite) countRows(ctx context.Context, q string) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var n int64
	err := s.db.QueryRowContext(queryCtx, q).Scan(&n)
	s.recordError(err)
	return n, errors.Wrap(err, "db count")
}

type LanguageCount struct {
	Language string `json:"language"`
	Count    int64  `json:"count"`
}

// TopLanguages groups all pastes, expired ones included.
func (s *SQLite) TopLanguages(ctx context.Context, limit int) ([]LanguageCount, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(queryCtx,
		`SELECT language, COUNT(*) AS n FROM pastes GROUP BY language ORDER BY n DESC, language ASC LIMIT ?`,
		limit,
	)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db top languages")
	}
	defer rows.Close()
	var out []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Count); err != nil {
			return nil, errors.Wrap(err, "scan language count")
		}
		out = append(out, lc)
	}
	return out, errors.Wrap(rows.Err(), "iterate language counts")
}

// PopularPastes filters to live pastes and never touches view counters.
func (s *SQLite) PopularPastes(ctx context.Context, limit int, now time.Time) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, content, title, language, user_id, created_at, expires_at, views, created_by_ip
	FROM pastes
	WHERE expires_at IS NULL OR expires_at > ?
	ORDER BY views DESC, created_at ASC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(queryCtx, q, now, limit)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db popular pastes")
	}
	defer rows.Close()
	return collectPastes(rows)
}
