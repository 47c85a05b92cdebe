package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"corrsim/internal/models"
)

const nostroColumns = `id, owner_bank_id, correspondent_bank_id, currency, balance, created_at`

// NostroRepository handles nostro account data access.
type NostroRepository struct {
	db DBTX
}

func NewNostroRepository(db DBTX) *NostroRepository {
	return &NostroRepository{db: db}
}

// Create inserts a nostro. A second nostro per (owner, currency) is a Conflict.
func (r *NostroRepository) Create(ctx context.Context, n models.NostroAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO nostros (id, owner_bank_id, correspondent_bank_id, currency, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.OwnerBankID, n.CorrespondentBankID, n.Currency, n.Balance, n.CreatedAt,
	)
	return mapError(err)
}

// Get returns the owner's nostro in currency.
func (r *NostroRepository) Get(ctx context.Context, ownerBankID, currency string) (*models.NostroAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+nostroColumns+`
		FROM nostros
		WHERE owner_bank_id = $1 AND currency = $2`,
		ownerBankID, currency)
	n, err := r.scan(row)
	if notFound(err) {
		return nil, nil
	}
	return n, err
}

// SetBalance overwrites a nostro balance.
func (r *NostroRepository) SetBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE nostros SET balance = $2 WHERE id = $1`, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.Errorf(models.KindNotFound, "nostro %s not found", id)
	}
	return nil
}

// List returns nostros matching filter in creation order.
func (r *NostroRepository) List(ctx context.Context, filter models.NostroFilter) ([]models.NostroAccount, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerBankID != "" {
		args = append(args, filter.OwnerBankID)
		where = append(where, fmt.Sprintf("owner_bank_id = $%d", len(args)))
	}
	if filter.Currency != "" {
		args = append(args, filter.Currency)
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}

	query := `SELECT ` + nostroColumns + ` FROM nostros`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nostros: %w", err)
	}
	return collect(rows, r.scan)
}

func (r *NostroRepository) scan(s scanner) (*models.NostroAccount, error) {
	var n models.NostroAccount
	if err := s.Scan(&n.ID, &n.OwnerBankID, &n.CorrespondentBankID, &n.Currency, &n.Balance, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}
