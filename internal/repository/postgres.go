package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ
)`

// Postgres keeps the key space in a single kv table.
type Postgres struct {
	DB *sql.DB
}

// OpenPostgres opens dsn with the pgx driver, pings and creates the table.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	p := NewPostgres(db)
	if err := p.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func expiry(ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	q := `SELECT value FROM kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`
	var v string
	if err := p.DB.QueryRowContext(ctx, q, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (p *Postgres) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	q := `
		INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	_, err := p.DB.ExecContext(ctx, q, key, value, expiry(ttl))
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, key)
	return err
}

// PutIfAbsent inserts key, replacing only a row that has already expired.
func (p *Postgres) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	q := `
		INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= now()
	`
	res, err := p.DB.ExecContext(ctx, q, key, value, expiry(ttl))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update serializes writers of key with a transaction-scoped advisory lock,
// so a missing key is read and inserted under the same lock as an existing row.
func (p *Postgres) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return err
	}

	var cur string
	found := true
	q := `SELECT value FROM kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > now()) FOR UPDATE`
	if err = tx.QueryRowContext(ctx, q, key).Scan(&cur); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		found = false
	}

	next, err := fn(cur, found)
	if errors.Is(err, ErrSkipWrite) {
		err = tx.Rollback()
		return err
	}
	if err != nil {
		return err
	}

	if found {
		_, err = tx.ExecContext(ctx, `UPDATE kv SET value = $2 WHERE key = $1`, key, next)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, NULL)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL
		`, key, next)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeExpired drops expired rows and returns how many were removed.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}
