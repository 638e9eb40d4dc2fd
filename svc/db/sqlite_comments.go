package db

import (
	"context"
	"database/sql"

	"pasteor/pkg/domain"

	"github.com/pkg/errors"
)

func (s *SQLite) InsertComment(ctx context.Context, c *domain.Comment) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO comments (paste_id, user_id, author_name, content, created_at)
	VALUES (?, ?, ?, ?, ?) RETURNING id
	`
	err := s.db.QueryRowContext(queryCtx, q,
		c.PasteID, nullInt(c.AuthorUserID), nullStr(c.AuthorName), c.Content, c.CreatedAt,
	).Scan(&c.ID)
	s.recordError(err)
	return errors.Wrap(err, "db insert comment")
}

// ListComments returns raw comment rows ordered by creation time; author
// display names are resolved by the service so user lookups can go
// through the cache.
func (s *SQLite) ListComments(ctx context.Context, pasteID string) ([]domain.Comment, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, paste_id, user_id, author_name, content, created_at
	FROM comments WHERE paste_id = ? ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(queryCtx, q, pasteID)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db list comments")
	}
	defer rows.Close()
	var out []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan comment")
		}
		out = append(out, *c)
	}
	return out, errors.Wrap(rows.Err(), "iterate comments")
}

func (s *SQLite) GetComment(ctx context.Context, id int64) (*domain.Comment, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, paste_id, user_id, author_name, content, created_at
	FROM comments WHERE id = ?
	`
	c, err := scanComment(s.db.QueryRowContext(queryCtx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCommentNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get comment")
	}
	return c, nil
}

func (s *SQLite) DeleteComment(ctx context.Context, id int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM comments WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "db delete comment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommentNotFound
	}
	return nil
}

func (s *SQLite) PasteExists(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	err := s.db.QueryRowContext(queryCtx, `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}

func scanComment(r rowScanner) (*domain.Comment, error) {
	var (
		c      domain.Comment
		userID sql.NullInt64
		name   sql.NullString
	)
	err := r.Scan(&c.ID, &c.PasteID, &userID, &name, &c.Content, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.Int64
		c.AuthorUserID = &v
	}
	if name.Valid {
		c.AuthorName = name.String
	}
	return &c, nil
}
