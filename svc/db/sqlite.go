package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"linkdump/pkg/domain"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrCircuitOpen = errors.New("database circuit breaker open")
	// ErrSlugTaken signals a concurrent insert won the slug; the caller
	// regenerates rather than overwriting.
	ErrSlugTaken = errors.New("slug already taken")
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
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
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
		errors.Is(err, context.DeadlineExceeded) {
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
func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	_, err = s.db.Exec("PRAGMA synchronous=FULL")
	if err != nil {
		return errors.Wrap(err, "set synchronous mode")
	}
	query := `
	CREATE TABLE IF NOT EXISTS dumps (
		slug TEXT PRIMARY KEY,
		items BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME,
		client_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_dumps_expires_at ON dumps(expires_at);
	`
	_, err = s.db.Exec(query)
	return err
}

// Create inserts a new dump. The slug PRIMARY KEY is the last line of
// defense against two concurrent creates minting the same slug; that case
// surfaces as ErrSlugTaken.
func (s *SQLite) Create(ctx context.Context, d *domain.Dump) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(d.Items)
	if err != nil {
		return errors.Wrap(err, "marshal items")
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO dumps (slug, items, created_at, expires_at, client_id)
	VALUES (?, ?, ?, ?, ?)
	`
	var expiresAt interface{}
	if d.ExpiresAt != nil {
		expiresAt = *d.ExpiresAt
	}
	_, err = s.db.ExecContext(queryCtx, q, d.Slug, itemsJSON, d.CreatedAt, expiresAt, d.ClientID)
	if isUniqueViolation(err) {
		return ErrSlugTaken
	}
	s.recordError(err)
	return errors.Wrap(err, "db create")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique)
	}
	return false
}

// Get returns the stored record without filtering on expiry; the service
// layer distinguishes not-found from expired.
func (s *SQLite) Get(ctx context.Context, slug string) (*domain.Dump, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT slug, items, created_at, expires_at, client_id
	FROM dumps WHERE slug = ?
	`
	var (
		d         domain.Dump
		itemsJSON []byte
		expiresAt sql.NullTime
		clientID  sql.NullString
	)
	err := s.db.QueryRowContext(queryCtx, q, slug).Scan(
		&d.Slug, &itemsJSON, &d.CreatedAt, &expiresAt, &clientID,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDumpNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	if err := json.Unmarshal(itemsJSON, &d.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	d.ClientID = clientID.String
	return &d, nil
}
func (s *SQLite) Exists(ctx context.Context, slug string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	q := `SELECT 1 FROM dumps WHERE slug = ? LIMIT 1`
	err := s.db.QueryRowContext(queryCtx, q, slug).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}
func (s *SQLite) CleanupExpired(ctx context.Context) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	totalDeleted := 0
	maxIterations := 10000
	for i := 0; i < maxIterations; i++ {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}
		queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		result, err := s.db.ExecContext(queryCtx, `
			DELETE FROM dumps
			WHERE slug IN (
				SELECT slug FROM dumps
				WHERE expires_at IS NOT NULL AND expires_at < ?
				LIMIT 100
			)
		`, time.Now())
		cancel()
		s.recordError(err)
		if err != nil {
			return totalDeleted, errors.Wrap(err, "cleanup batch failed")
		}
		deleted, _ := result.RowsAffected()
		totalDeleted += int(deleted)
		if deleted == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	if totalDeleted == maxIterations*100 {
		return totalDeleted, errors.New("cleanup hit iteration limit, more records may exist")
	}
	return totalDeleted, nil
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
