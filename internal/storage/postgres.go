package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
)

const (
	// DefaultTablePrefix is prepended to every table name.
	DefaultTablePrefix = "tool_crawler_"
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
)

var tablePrefixPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// postgresBucket keeps one (id, data JSONB, updated_at) table per kind.
type postgresBucket struct {
	db     *sqlx.DB
	prefix string
}

// OpenPostgres connects, verifies the connection and creates missing tables.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	store, err := NewPostgresStore(db, cfg.TablePrefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db, cfg.TablePrefix); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore returns a Store on an existing connection.
func NewPostgresStore(db *sqlx.DB, prefix string) (*Store, error) {
	prefix, err := tablePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return newStore(&postgresBucket{db: db, prefix: prefix}), nil
}

// EnsureSchema creates the entity tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB, prefix string) error {
	prefix, err := tablePrefix(prefix)
	if err != nil {
		return err
	}
	for _, kind := range allKinds {
		query := `CREATE TABLE IF NOT EXISTS ` + prefix + kind + ` (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", prefix+kind, err)
		}
	}
	return nil
}

func tablePrefix(prefix string) (string, error) {
	if prefix == "" {
		return DefaultTablePrefix, nil
	}
	if !tablePrefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("invalid table prefix %q", prefix)
	}
	return prefix, nil
}

func (p *postgresBucket) table(kind string) string {
	return p.prefix + kind
}

func (p *postgresBucket) get(ctx context.Context, kind, id string) ([]byte, error) {
	var data []byte
	query := `SELECT data FROM ` + p.table(kind) + ` WHERE id = $1`

	err := p.db.GetContext(ctx, &data, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	return data, nil
}

func (p *postgresBucket) put(ctx context.Context, kind string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO ` + p.table(kind) + ` (id, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

	for id, data := range entries {
		if _, err := tx.ExecContext(ctx, query, id, data); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", kind, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", kind, err)
	}
	return nil
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (p *postgresBucket) all(ctx context.Context, kind string) (map[string][]byte, error) {
	var rows []row
	query := `SELECT id, data FROM ` + p.table(kind)

	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Data
	}
	return out, nil
}

func (p *postgresBucket) appendEntry(ctx context.Context, kind string, data []byte) error {
	query := `INSERT INTO ` + p.table(kind) + ` (id, data, updated_at) VALUES ($1, $2, NOW())`
	if _, err := p.db.ExecContext(ctx, query, uuid.NewString(), data); err != nil {
		return fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return nil
}

func (p *postgresBucket) recent(ctx context.Context, kind string, limit int) ([][]byte, error) {
	var rows []row
	query := `SELECT id, data FROM ` + p.table(kind) + ` ORDER BY updated_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Data)
	}
	return out, nil
}

func (p *postgresBucket) close() error {
	return p.db.Close()
}
