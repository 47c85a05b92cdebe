package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LedgerLockKey is the advisory lock every ledger transaction holds, so ledger
// units of work are serialized across processes sharing the database.
const LedgerLockKey int64 = 0x636f7272 // "corr"

// WithTx executes a function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithLockedTx is WithTx holding the ledger advisory lock for the whole transaction.
func (db *DB) WithLockedTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, LedgerLockKey); err != nil {
			return fmt.Errorf("acquire ledger lock: %w", err)
		}
		return fn(tx)
	})
}
