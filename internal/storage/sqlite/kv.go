package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
)

// Expiry is stored as unix milliseconds; 0 means the row never expires.

// Get returns the live value for key and its expiry.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var val []byte
	var expiresAt int64
	err := s.read.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv
		 WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&val, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, tiercache.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("sqlite get: %w", err)
	}
	return val, fromMillis(expiresAt), nil
}

// Put upserts key with the given TTL. A non-positive ttl never expires.
func (s *Store) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	now := s.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO kv (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   stored_at = excluded.stored_at,
		   expires_at = excluded.expires_at`,
		key, val, now.UnixMilli(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.write.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// List returns the live keys starting with prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT key FROM kv
		 WHERE substr(key, 1, length(?)) = ? AND (expires_at = 0 OR expires_at > ?)
		 ORDER BY key`,
		prefix, prefix, s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite list: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// PurgeExpired deletes rows past their expiry and returns how many.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`, s.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
