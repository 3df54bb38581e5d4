package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"huddle/cmd/internal/docstore"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// OpenDocStore exposes pool through database/sql and prepares the documents table.
//
// Ownership model:
// - the caller owns pool and the returned *sql.DB
// - closing the *sql.DB does not close the pool
func OpenDocStore(ctx context.Context, pool *pgxpool.Pool, schema string) (*docstore.PostgresStore, *sql.DB, error) {
	db := stdlib.OpenDBFromPool(pool)

	st, err := docstore.NewPostgresStore(db, docstore.WithSchema(schema))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	mctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := st.Migrate(mctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return st, db, nil
}
