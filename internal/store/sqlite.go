// Package store persists users, profiles and raw daily records in SQLite.
//
// Records are kept exactly as written; nothing here interprets a payload.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lox/recoverytrack/internal/metrics"
	"github.com/lox/recoverytrack/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// maxKeyBumps bounds how far WriteRecord walks forward from the write time
// looking for a free key.
const maxKeyBumps = 1000

type Store struct {
	db  *sql.DB
	log *zap.Logger

	busyTimeout time.Duration
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:          db,
		log:         logger.With(zap.String("component", "store")),
		busyTimeout: 10 * time.Second,
	}
}

// Open opens a SQLite database file with the pragmas the store relies on.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FetchRecords returns every stored payload for userID keyed by record key.
// exists is false when the user has no records at all.
func (s *Store) FetchRecords(ctx context.Context, userID string) (map[string]models.RawRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, payload FROM daily_records WHERE user_id = ? ORDER BY record_key
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.RawRecord)
	for rows.Next() {
		var (
			key     int64
			payload string
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, false, fmt.Errorf("scan record: %w", err)
		}
		out[strconv.FormatInt(key, 10)] = models.RawRecord(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate records: %w", err)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// WriteRecord stores payload under a key derived from at (Unix milliseconds),
// moving forward one millisecond at a time if the key is taken. The payload
// must be a JSON object. Busy-database errors are retried with backoff.
func (s *Store) WriteRecord(ctx context.Context, userID string, at time.Time, payload []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if obj == nil {
		return "", errors.New("payload is not a JSON object")
	}

	var key int64
	operation := func() error {
		k, err := s.insertRecord(ctx, userID, at.UnixMilli(), payload)
		if err != nil {
			if isBusy(err) {
				metrics.StoreBusyRetries.Inc()
				s.log.Warn("database busy, retrying write", zap.String("user_id", userID))
				return err
			}
			return backoff.Permanent(err)
		}
		key = k
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.busyTimeout
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return strconv.FormatInt(key, 10), nil
}

func (s *Store) insertRecord(ctx context.Context, userID string, key int64, payload []byte) (int64, error) {
	for i := 0; i < maxKeyBumps; i++ {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO daily_records (user_id, record_key, payload, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, record_key) DO NOTHING
		`, userID, key, string(payload), time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		if n == 1 {
			return key, nil
		}
		key++
	}
	return 0, fmt.Errorf("insert record: no free key near %d", key)
}

// DeleteRecord removes one record. It returns ErrNotFound if there was none.
func (s *Store) DeleteRecord(ctx context.Context, userID, key string) error {
	k, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_records WHERE user_id = ? AND record_key = ?`, userID, k)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
