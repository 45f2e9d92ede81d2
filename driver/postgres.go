// Package driver connects the storefront to its backing services.
package driver

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the query surface shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPool is an interface that represents a connection pool to a driver.
type PostgresPool interface {
	Querier

	// BeginTx starts a new transaction and returns a Tx.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)

	// SendBatch sends a batch of queries to the server.
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults

	// Ping checks that a connection can be acquired and used.
	Ping(ctx context.Context) error

	// Close closes the pool and all its connections.
	Close()
}

var _ PostgresPool = (*pgxpool.Pool)(nil)

// PostgresOptions tunes the pool created by ConnectPostgres.
type PostgresOptions struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// maxOpenDbConn defines the default maximum number of open driver connections.
const maxOpenDbConn = 10

// maxDbLifetime is the default maximum lifetime of a connection in the pool.
const maxDbLifetime = 5 * time.Minute

// ConnectPostgres parses dsn, applies the pool limits and verifies that a
// connection can be established.
func ConnectPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConns = maxOpenDbConn
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MaxConnLifetime = maxDbLifetime
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Use returns tx when it is set, otherwise the pool itself.
func Use(pool PostgresPool, tx pgx.Tx) Querier {
	if tx != nil {
		return tx
	}
	return pool
}
