// Package repository holds the SQL data access for the Postgres ledger store.
// Every repository runs against the caller's transaction.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"corrsim/internal/models"
)

// DBTX is the subset of pgx.Tx and pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

// conflictMessages maps unique constraints to the error reported for them.
var conflictMessages = map[string]string{
	"banks_pkey":                 "bank already exists",
	"banks_name_key":             "bank name already exists",
	"clients_pkey":               "client already exists",
	"clients_house_key":          "bank already has a house client",
	"clients_vostro_key":         "vostro already exists for this bank pair",
	"nostros_pkey":               "nostro already exists",
	"nostros_owner_currency_key": "nostro already exists for this currency",
	"payments_pkey":              "payment already exists",
}

// mapError turns unique violations into Conflict errors and passes
// everything else through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		msg, ok := conflictMessages[pgErr.ConstraintName]
		if !ok {
			msg = "duplicate " + pgErr.ConstraintName
		}
		return models.Errorf(models.KindConflict, "%s", msg)
	}
	return err
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func collect[T any](rows pgx.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Wipe empties every ledger table, reference data and counters included.
func Wipe(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, `
		TRUNCATE fx_events, payment_messages, payments, balances, nostros, clients, banks,
			counters, fx_rates, clearing_windows, sim_clock
		RESTART IDENTITY`)
	return err
}
