// Package postgres wraps *sqlx.DB with the transaction/advisory-lock
// helpers every repository in this module builds on. Grounded on
// vidinfra-flexprice/internal/repository/postgres/wallet.go (the teacher's
// hand-written, non-ent repository) and
// vidinfra-flexprice/internal/postgres/{transaction.go,tenant.go}. The
// teacher's default store is entgo.io/ent, which requires code generation we
// cannot run in this exercise; its own repository/postgres tree shows the
// sqlx-based alternative is an idiom the codebase already supports, so we
// generalize that one instead (see DESIGN.md).
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/meteroid-oss/meteroid-sub006/internal/config"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// IClient is the transaction-running contract service-layer code depends
// on instead of the concrete *DB, grounded on
// vidinfra-flexprice/internal/postgres/client.go's IClient — the seam that
// lets subscriptionsvc/invoicesvc tests substitute a no-op transaction
// runner instead of a live Postgres connection.
type IClient interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DB is the process-wide Postgres handle.
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// New opens the writer connection pool per config.PostgresConfig.
func New(cfg *config.Configuration, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)

	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{DB: db, logger: log}, nil
}

// txKey is the context key storing the active *Tx, mirroring the teacher's
// postgres.TxKey pattern.
type txKey struct{}

// Tx wraps sqlx.Tx, adding savepoint-depth tracking so nested WithTx calls
// (e.g. invoice finalization calling into the ledger inside the same
// transaction) compose instead of erroring.
type Tx struct {
	*sqlx.Tx
	savepointDepth int
	id             string
}

// TxOrDB is satisfied by both *DB and *Tx, letting repositories accept
// whichever is live in the current context without an interface per method.
type TxOrDB interface {
	sqlx.ExtContext
	sqlx.Ext
}

// Exec returns the live executor for the context: the transaction if one is
// open, otherwise the plain DB connection pool. Repositories call this once
// per method instead of threading *Tx through every signature.
func (db *DB) Exec(ctx context.Context) TxOrDB {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return db.DB
}

// FromContext retrieves the active transaction, if any.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// beginTx starts a new transaction, or a savepoint if one is already open.
func (db *DB) beginTx(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := FromContext(ctx); ok {
		tx.savepointDepth++
		sp := fmt.Sprintf("sp_%d", tx.savepointDepth)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return ctx, nil, fmt.Errorf("create savepoint: %w", err)
		}
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlxTx, id: types.NewID()}
	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

func (db *DB) commitTx(ctx context.Context, tx *Tx) error {
	if tx.savepointDepth > 0 {
		sp := fmt.Sprintf("sp_%d", tx.savepointDepth)
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		tx.savepointDepth--
		return nil
	}
	return tx.Commit()
}

func (db *DB) rollbackTx(ctx context.Context, tx *Tx) error {
	if tx.savepointDepth > 0 {
		sp := fmt.Sprintf("sp_%d", tx.savepointDepth)
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
			return fmt.Errorf("rollback to savepoint: %w", err)
		}
		tx.savepointDepth--
		return nil
	}
	return tx.Rollback()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back (including on panic) on failure. Nested calls use savepoints, so a
// service method calling another service method that also opens a
// transaction still gets one atomic commit — the unit every §5 ordering
// guarantee ("transactions are scoped to one iteration") depends on.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctx, tx, err := db.beginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = db.rollbackTx(ctx, tx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := db.rollbackTx(ctx, tx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return db.commitTx(ctx, tx)
}
