// Package store persists notices, rules, settings and run logs in postgres or
// sqlite through database/sql.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is safe for concurrent use. Every operation acquires its own
// connection from the pool; no transaction spans a collection run.
type Store struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver string
	log    *logger.Logger
}

// Open connects with the given driver and applies pending migrations
func Open(ctx context.Context, driver, url string, maxConns int) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch driver {
	case DriverPostgres:
		s, err = Connect(ctx, url, maxConns)
	case DriverSQLite:
		s, err = OpenSQLite(ctx, url)
	default:
		return nil, apperrors.NewConfiguration(fmt.Sprintf("unknown database driver %q", driver), nil)
	}
	if err != nil {
		return nil, err
	}

	if err := s.ApplyMigrations(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens a pgx pool and exposes it through database/sql
func Connect(ctx context.Context, url string, maxConns int) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return &Store{
		db:     stdlib.OpenDBFromPool(pool),
		pool:   pool,
		driver: DriverPostgres,
		log:    logger.ForStore(),
	}, nil
}

// OpenSQLite opens an embedded database. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	if !strings.Contains(dsn, "_time_format") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		// sortable text timestamps
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases
	// alive for the lifetime of the store
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &Store{db: db, driver: DriverSQLite, log: logger.ForStore()}, nil
}

// Driver returns the active driver name
func (s *Store) Driver() string { return s.driver }

// Close releases the database handle and the pool behind it
func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// now is the write timestamp. sqlite keeps whatever is written, so both
// drivers store UTC.
func now() time.Time {
	return time.Now().UTC()
}
