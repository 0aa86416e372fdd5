// Package sqlite implements the durable cache tier on SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// Store implements storage.Durable using SQLite. Writes go through a single
// connection; reads use a pool.
type Store struct {
	write *sql.DB
	read  *sql.DB
	now   func() time.Time
}

// New opens the database at dsn, applies pending migrations and returns a
// Store. ":memory:" opens a private in-memory database shared by the
// Store's read and write pools only.
func New(ctx context.Context, dsn string) (*Store, error) {
	full := buildDSN(dsn)

	write, err := sql.Open("sqlite", full)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", full)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := migrate(ctx, write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{write: write, read: read, now: time.Now}, nil
}

// buildDSN turns a path, ":memory:" or an existing "file:" URI into a
// modernc URI carrying the connection pragmas.
func buildDSN(dsn string) string {
	switch {
	case dsn == ":memory:":
		return "file:mem-" + uuid.NewString() + "?mode=memory&cache=shared&" + pragmas
	case strings.HasPrefix(dsn, "file:"):
		if strings.Contains(dsn, "?") {
			return dsn + "&" + pragmas
		}
		return dsn + "?" + pragmas
	default:
		return "file:" + dsn + "?" + pragmas
	}
}

// migrate applies the embedded goose migrations and logs what ran.
func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.LogAttrs(ctx, slog.LevelDebug, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Ping checks the read pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.read.PingContext(ctx)
}

// Close closes both pools.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
