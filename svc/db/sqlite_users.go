package db

import (
	"context"
	"database/sql"
	"time"

	"pasteor/pkg/domain"

	"github.com/pkg/errors"
)

// ResolveUser maps an externally verified identity tuple onto a stable
// integer id, creating the row on first sight. Name and avatar follow the
// provider on every login.
func (s *SQLite) ResolveUser(ctx context.Context, email, name, avatarURL, provider, providerID string) (*domain.User, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO users (email, name, avatar_url, provider, provider_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(email) DO UPDATE SET name = excluded.name, avatar_url = excluded.avatar_url
	RETURNING id, email, name, avatar_url, provider, provider_id, created_at
	`
	u, err := scanUser(s.db.QueryRowContext(queryCtx, q,
		email, nullStr(name), nullStr(avatarURL), provider, providerID, time.Now().UTC(),
	))
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db resolve user")
	}
	return u, nil
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, email, name, avatar_url, provider, provider_id, created_at
	FROM users WHERE id = ?
	`
	u, err := scanUser(s.db.QueryRowContext(queryCtx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get user")
	}
	return u, nil
}

// DeleteUser detaches ownership: pastes and comments survive anonymously
// through the SET NULL foreign keys.
func (s *SQLite) DeleteUser(ctx context.Context, id int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `DELETE FROM users WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "db delete user")
}

func scanUser(r rowScanner) (*domain.User, error) {
	var (
		u      domain.User
		name   sql.NullString
		avatar sql.NullString
	)
	err := r.Scan(&u.ID, &u.Email, &name, &avatar, &u.Provider, &u.ProviderID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		u.Name = name.String
	}
	if avatar.Valid {
		u.AvatarURL = avatar.String
	}
	return &u, nil
}
