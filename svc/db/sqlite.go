package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"pasteor/pkg/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrCircuitOpen = errors.New("database circuit breaker open")
	// ErrDuplicateID signals that an insert lost the id uniqueness race;
	// the caller retries with a freshly generated id.
	ErrDuplicateID = errors.New("duplicate paste id")
)

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	} else {
		dsn += "&_foreign_keys=on&_busy_timeout=5000"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           sqlDB,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isConstraintErr(err) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}

func isConstraintErr(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrConstraint
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		avatar_url TEXT,
		provider TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		title TEXT,
		language TEXT NOT NULL DEFAULT 'plaintext',
		user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME,
		views INTEGER NOT NULL DEFAULT 0,
		created_by_ip TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_created_at ON pastes(created_at);
	CREATE INDEX IF NOT EXISTS idx_pastes_user_id ON pastes(user_id);
	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paste_id TEXT NOT NULL REFERENCES pastes(id) ON DELETE CASCADE,
		user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		author_name TEXT,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_paste_id ON comments(paste_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// InsertPaste performs a single atomic insert-if-absent: a primary key
// collision comes back as ErrDuplicateID rather than a separate
// check-then-insert, so two concurrent creates can never both win an id.
func (s *SQLite) InsertPaste(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, content, title, language, user_id, created_at, expires_at, views, created_by_ip)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Content, nullStr(p.Title), p.Language, nullInt(p.OwnerUserID),
		p.CreatedAt, nullTime(p.ExpiresAt), nullStr(p.CreatedByIP),
	)
	if isPrimaryKeyErr(err) {
		return ErrDuplicateID
	}
	s.recordError(err)
	return errors.Wrap(err, "db insert paste")
}

func isPrimaryKeyErr(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// GetPaste returns the row regardless of expiry; liveness is the
// service's call.
func (s *SQLite) GetPaste(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, content, title, language, user_id, created_at, expires_at, views, created_by_ip
	FROM pastes WHERE id = ?
	`
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get paste")
	}
	return p, nil
}

// IncrementViews bumps the view counter in a single update statement and
// returns the new count. Concurrent viewers each land exactly one
// increment; there is no application-level read-modify-write to lose.
func (s *SQLite) IncrementViews(ctx context.Context, id string) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `UPDATE pastes SET views = views + 1 WHERE id = ? RETURNING views`
	var views int64
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(&views)
	if err == sql.ErrNoRows {
		return 0, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "incr views")
	}
	return views, nil
}

// UpdatePaste applies only the supplied fields. Last writer wins; racing
// a delete means zero rows affected, surfaced as not found.
func (s *SQLite) UpdatePaste(ctx context.Context, id string, params domain.UpdateParams) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if params.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *params.Content)
	}
	if params.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullStr(*params.Title))
	}
	if params.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *params.Language)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := "UPDATE pastes SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(queryCtx, q, args...)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "db update paste")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPasteNotFound
	}
	return nil
}

// DeletePaste removes the row; comments go with it via the cascading
// foreign key. A second delete of the same id reports not found.
func (s *SQLite) DeletePaste(ctx context.Context, id string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "db delete paste")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPasteNotFound
	}
	return nil
}

func (s *SQLite) ListRecent(ctx context.Context, limit int, now time.Time) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, content, title, language, user_id, created_at, expires_at, views, created_by_ip
	FROM pastes
	WHERE expires_at IS NULL OR expires_at > ?
	ORDER BY created_at DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(queryCtx, q, now, limit)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db list recent")
	}
	defer rows.Close()
	return collectPastes(rows)
}

func (s *SQLite) ListOwned(ctx context.Context, userID int64, q domain.OwnedQuery, offset, limit int) ([]domain.Paste, int64, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, 0, err
	}
	where := "WHERE user_id = ?"
	args := []interface{}{userID}
	if q.Search != "" {
		// instr is a case-sensitive substring match; LIKE would fold
		// ASCII case.
		where += " AND (instr(COALESCE(title, ''), ?) > 0 OR instr(content, ?) > 0)"
		args = append(args, q.Search, q.Search)
	}
	if q.Language != "" && q.Language != "all" {
		where += " AND language = ?"
		args = append(args, q.Language)
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var total int64
	err := s.db.QueryRowContext(queryCtx, "SELECT COUNT(*) FROM pastes "+where, args...).Scan(&total)
	s.recordError(err)
	if err != nil {
		return nil, 0, errors.Wrap(err, "db count owned")
	}

	var order string
	switch q.Sort {
	case domain.SortViews:
		order = "ORDER BY views DESC, created_at DESC"
	case domain.SortTitle:
		order = "ORDER BY COALESCE(NULLIF(title, ''), id) ASC"
	default:
		order = "ORDER BY created_at DESC"
	}

	sel := `
	SELECT id, content, title, language, user_id, created_at, expires_at, views, created_by_ip
	FROM pastes ` + where + " " + order + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(queryCtx, sel, args...)
	s.recordError(err)
	if err != nil {
		return nil, 0, errors.Wrap(err, "db list owned")
	}
	defer rows.Close()
	pastes, err := collectPastes(rows)
	if err != nil {
		return nil, 0, err
	}
	return pastes, total, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaste(r rowScanner) (*domain.Paste, error) {
	var (
		p       domain.Paste
		title   sql.NullString
		userID  sql.NullInt64
		expires sql.NullTime
		ip      sql.NullString
	)
	err := r.Scan(&p.ID, &p.Content, &title, &p.Language, &userID, &p.CreatedAt, &expires, &p.Views, &ip)
	if err != nil {
		return nil, err
	}
	if title.Valid {
		p.Title = title.String
	}
	if userID.Valid {
		v := userID.Int64
		p.OwnerUserID = &v
	}
	if expires.Valid {
		t := expires.Time
		p.ExpiresAt = &t
	}
	if ip.Valid {
		p.CreatedByIP = ip.String
	}
	return &p, nil
}

func collectPastes(rows *sql.Rows) ([]domain.Paste, error) {
	var out []domain.Paste
	for rows.Next() {
		p, err := scanPaste(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan paste")
		}
		out = append(out, *p)
	}
	return out, errors.Wrap(rows.Err(), "iterate pastes")
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
