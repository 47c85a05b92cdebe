package repository

import (
	"context"
	"fmt"

	"corrsim/internal/models"
)

const paymentColumns = `id, from_client_id, to_client_id, from_bank_id, to_bank_id,
	debit_currency, credit_currency, settlement_currency,
	debit_amount, settlement_amount, credit_amount,
	route, state, fail_reason, created_at, executed_at, settled_at`

// PaymentRepository handles payment data access.
type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, p models.Payment) error {
	route := p.Route
	if route == nil {
		route = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.FromClientID, p.ToClientID, p.FromBankID, p.ToBankID,
		p.DebitCurrency, p.CreditCurrency, p.SettlementCurrency,
		p.DebitAmount, p.SettlementAmount, p.CreditAmount,
		route, string(p.State), p.FailReason, p.CreatedAt, p.ExecutedAt, p.SettledAt,
	)
	return mapError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	p, err := r.scan(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if notFound(err) {
		return nil, nil
	}
	return p, err
}

// Update writes the mutable lifecycle fields.
func (r *PaymentRepository) Update(ctx context.Context, p models.Payment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET state = $2, fail_reason = $3, executed_at = $4, settled_at = $5
		WHERE id = $1`,
		p.ID, string(p.State), p.FailReason, p.ExecutedAt, p.SettledAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.Errorf(models.KindNotFound, "payment %s not found", p.ID)
	}
	return nil
}

// List returns payments newest first.
func (r *PaymentRepository) List(ctx context.Context) ([]models.Payment, error) {
	return r.many(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY seq DESC`)
}

// ListQueued returns queued payments oldest first.
func (r *PaymentRepository) ListQueued(ctx context.Context) ([]models.Payment, error) {
	return r.many(ctx, `SELECT `+paymentColumns+` FROM payments WHERE state = 'QUEUED' ORDER BY seq`)
}

// Clear deletes every payment with its messages and FX history.
func (r *PaymentRepository) Clear(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `TRUNCATE fx_events, payment_messages, payments`)
	return err
}

func (r *PaymentRepository) many(ctx context.Context, query string, args ...any) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return collect(rows, r.scan)
}

func (r *PaymentRepository) scan(s scanner) (*models.Payment, error) {
	var (
		p     models.Payment
		state string
	)
	err := s.Scan(
		&p.ID, &p.FromClientID, &p.ToClientID, &p.FromBankID, &p.ToBankID,
		&p.DebitCurrency, &p.CreditCurrency, &p.SettlementCurrency,
		&p.DebitAmount, &p.SettlementAmount, &p.CreditAmount,
		&p.Route, &state, &p.FailReason, &p.CreatedAt, &p.ExecutedAt, &p.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	p.State = models.PaymentState(state)
	if p.Route == nil {
		p.Route = []string{}
	}
	return &p, nil
}

// MessageRepository handles the payment message log.
type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append adds a message.
func (r *MessageRepository) Append(ctx context.Context, m models.PaymentMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_messages (id, payment_id, type, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.PaymentID, string(m.Type), m.Details, m.CreatedAt,
	)
	return mapError(err)
}

// ListByPayment returns a payment's messages in append order.
func (r *MessageRepository) ListByPayment(ctx context.Context, paymentID string) ([]models.PaymentMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payment_id, type, details, created_at
		FROM payment_messages
		WHERE payment_id = $1
		ORDER BY seq`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query payment messages: %w", err)
	}
	return collect(rows, func(s scanner) (*models.PaymentMessage, error) {
		var (
			m   models.PaymentMessage
			typ string
		)
		if err := s.Scan(&m.ID, &m.PaymentID, &typ, &m.Details, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = models.MessageType(typ)
		return &m, nil
	})
}
