package repository

import (
	"context"
	"fmt"

	"corrsim/internal/models"
)

// BankRepository handles bank data access.
type BankRepository struct {
	db DBTX
}

func NewBankRepository(db DBTX) *BankRepository {
	return &BankRepository{db: db}
}

// Create inserts a bank. A duplicate id or name is a Conflict.
func (r *BankRepository) Create(ctx context.Context, b models.Bank) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO banks (id, name, base_currency, created_at)
		VALUES ($1, $2, $3, $4)`,
		b.ID, b.Name, b.BaseCurrency, b.CreatedAt,
	)
	return mapError(err)
}

// GetByID retrieves a bank by ID.
func (r *BankRepository) GetByID(ctx context.Context, id string) (*models.Bank, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, base_currency, created_at
		FROM banks
		WHERE id = $1`, id)
	b, err := r.scan(row)
	if notFound(err) {
		return nil, nil
	}
	return b, err
}

// List returns banks in creation order.
func (r *BankRepository) List(ctx context.Context) ([]models.Bank, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, base_currency, created_at
		FROM banks
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query banks: %w", err)
	}
	return collect(rows, r.scan)
}

func (r *BankRepository) scan(s scanner) (*models.Bank, error) {
	var b models.Bank
	if err := s.Scan(&b.ID, &b.Name, &b.BaseCurrency, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
