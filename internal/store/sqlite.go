package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultRetention     = 10 * time.Minute
	defaultPruneInterval = time.Minute
)

// SQLiteStore implements Store using SQLite. Several processes may open the
// same file; each instance sees the others' writes as Events.
type SQLiteStore struct {
	db           *sql.DB
	logger       *slog.Logger
	origin       string
	pollInterval time.Duration
	retention    time.Duration
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithPollInterval sets how often Watch reads the change log.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithRetention sets how long change log rows are kept.
func WithRetention(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for a private in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:           db,
		origin:       uuid.NewString(),
		pollInterval: defaultPollInterval,
		retention:    defaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.With("component", "store", "origin", s.origin[:8])
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Origin returns the identifier this instance stamps on its changes.
func (s *SQLiteStore) Origin() string {
	return s.origin
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "kv", "key", key)

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "kv", "key", key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	switch {
	case err == nil && old == value:
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("get %s: %w", key, err)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := s.recordChange(ctx, tx, key, value, false, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	s.logger.Debug("sql", "op", "delete", "table", "kv", "key", key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if err := s.recordChange(ctx, tx, key, "", true, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) recordChange(ctx context.Context, tx *sql.Tx, key, value string, deleted bool, at int64) error {
	del := 0
	if deleted {
		del = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO kv_changes (key, value, deleted, origin, changed_at) VALUES (?, ?, ?, ?, ?)`,
		key, value, del, s.origin, at,
	)
	if err != nil {
		return fmt.Errorf("record change %s: %w", key, err)
	}
	return nil
}

// Watch polls the change log and emits changes written by other instances.
// Changes made before Watch is called are not replayed.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan Event, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM kv_changes`).Scan(&last); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)

		poll := time.NewTicker(s.pollInterval)
		defer poll.Stop()
		prune := time.NewTicker(defaultPruneInterval)
		defer prune.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-prune.C:
				if n, err := s.PruneChanges(ctx, s.retention); err != nil {
					s.logger.Warn("prune change log", "error", err)
				} else if n > 0 {
					s.logger.Debug("pruned change log", "rows", n)
				}
			case <-poll.C:
				events, next, err := s.changesSince(ctx, last)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("read change log", "error", err)
					}
					continue
				}
				last = next
				for _, ev := range events {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// changesSince returns foreign changes after seq and the new high-water mark.
func (s *SQLiteStore) changesSince(ctx context.Context, seq int64) ([]Event, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, key, value, deleted, origin FROM kv_changes WHERE seq > ? ORDER BY seq`, seq)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			deleted int
			origin  string
		)
		if err := rows.Scan(&seq, &ev.Key, &ev.NewValue, &deleted, &origin); err != nil {
			return nil, seq, err
		}
		if origin == s.origin {
			continue
		}
		ev.Removed = deleted != 0
		events = append(events, ev)
	}
	return events, seq, rows.Err()
}

// PruneChanges deletes change log rows older than maxAge.
func (s *SQLiteStore) PruneChanges(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.logger.Debug("sql", "op", "prune", "table", "kv_changes")

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv_changes WHERE changed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
