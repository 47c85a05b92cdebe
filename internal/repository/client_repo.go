package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"corrsim/internal/models"
)

const clientColumns = `id, bank_id, name, kind, vostro_for_bank_id, created_at`

// ClientRepository handles client data access.
type ClientRepository struct {
	db DBTX
}

func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create inserts a client. A second House client per bank or a second vostro
// per bank pair is a Conflict.
func (r *ClientRepository) Create(ctx context.Context, c models.Client) error {
	vostroFor := pgtype.Text{String: c.VostroForBankID, Valid: c.VostroForBankID != ""}
	_, err := r.db.Exec(ctx, `
		INSERT INTO clients (id, bank_id, name, kind, vostro_for_bank_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.BankID, c.Name, string(c.Kind), vostroFor, c.CreatedAt,
	)
	return mapError(err)
}

// GetByID retrieves a client by ID.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
}

// FindHouse returns the bank's House client.
func (r *ClientRepository) FindHouse(ctx context.Context, bankID string) (*models.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM clients WHERE bank_id = $1 AND kind = 'HOUSE'`, bankID)
}

// FindVostro returns the vostro client at host mirroring foreign.
func (r *ClientRepository) FindVostro(ctx context.Context, hostBankID, foreignBankID string) (*models.Client, error) {
	return r.one(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE bank_id = $1 AND vostro_for_bank_id = $2 AND kind = 'VOSTRO'`,
		hostBankID, foreignBankID)
}

// List returns every client in creation order.
func (r *ClientRepository) List(ctx context.Context) ([]models.Client, error) {
	return r.many(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY seq`)
}

// ListByBank returns the bank's clients in creation order.
func (r *ClientRepository) ListByBank(ctx context.Context, bankID string) ([]models.Client, error) {
	return r.many(ctx, `SELECT `+clientColumns+` FROM clients WHERE bank_id = $1 ORDER BY seq`, bankID)
}

func (r *ClientRepository) one(ctx context.Context, query string, args ...any) (*models.Client, error) {
	c, err := r.scan(r.db.QueryRow(ctx, query, args...))
	if notFound(err) {
		return nil, nil
	}
	return c, err
}

func (r *ClientRepository) many(ctx context.Context, query string, args ...any) ([]models.Client, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	return collect(rows, r.scan)
}

func (r *ClientRepository) scan(s scanner) (*models.Client, error) {
	var (
		c         models.Client
		kind      string
		vostroFor pgtype.Text
	)
	if err := s.Scan(&c.ID, &c.BankID, &c.Name, &kind, &vostroFor, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Kind = models.ClientKind(kind)
	if vostroFor.Valid {
		c.VostroForBankID = vostroFor.String
	}
	return &c, nil
}

// BalanceRepository handles per-client, per-currency balances.
type BalanceRepository struct {
	db DBTX
}

func NewBalanceRepository(db DBTX) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get returns the balance, or zero if none was ever written.
func (r *BalanceRepository) Get(ctx context.Context, clientID, currency string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT amount FROM balances WHERE client_id = $1 AND currency = $2`,
		clientID, currency,
	).Scan(&amount)
	if notFound(err) {
		return decimal.Zero, nil
	}
	return amount, err
}

// Set upserts the balance.
func (r *BalanceRepository) Set(ctx context.Context, clientID, currency string, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO balances (client_id, currency, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, currency) DO UPDATE SET amount = EXCLUDED.amount`,
		clientID, currency, amount,
	)
	return err
}

// List returns every balance in first-write order.
func (r *BalanceRepository) List(ctx context.Context) ([]models.Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT client_id, currency, amount FROM balances ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	return collect(rows, func(s scanner) (*models.Balance, error) {
		var b models.Balance
		if err := s.Scan(&b.ClientID, &b.Currency, &b.Amount); err != nil {
			return nil, err
		}
		return &b, nil
	})
}
