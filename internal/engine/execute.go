package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corrsim/internal/fx"
	"corrsim/internal/journal"
	"corrsim/internal/ledger"
	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/routing"
	"corrsim/internal/store"
)

// Execute runs one queued payment regardless of clearing hours.
// It reports whether the payment settled.
func (e *Engine) Execute(ctx context.Context, paymentID string) (bool, error) {
	return e.execute(ctx, paymentID)
}

// execute applies every settlement step as one unit of work. Any failure
// rolls the unit back and records the payment as FAILED in a second unit.
// Only infrastructure errors that also prevent the failure write are returned.
func (e *Engine) execute(ctx context.Context, paymentID string) (bool, error) {
	var (
		legs    []journal.Leg
		settled models.Payment
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return models.Errorf(models.KindNotFound, "payment %s not found", paymentID)
		}
		if p.State != models.PaymentStateQueued {
			return errNotQueued
		}

		s := ledger.NewSession(tx, e.clock.Now())
		if err := e.settle(ctx, s, p); err != nil {
			return err
		}
		legs = s.Legs()
		settled = *p
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errNotQueued):
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		if ferr := e.fail(ctx, paymentID, err); ferr != nil {
			return false, ferr
		}
		return false, nil
	}

	e.metrics.PaymentSettled(settled.SettlementCurrency)
	e.logger.Info("payment settled",
		zap.String("payment_id", settled.ID),
		zap.String("settlement_currency", settled.SettlementCurrency),
		zap.String("credit_amount", money.String(settled.CreditAmount)),
	)
	if err := e.journal.Record(ctx, settled.ID, legs); err != nil {
		e.metrics.JournalFailed()
		e.logger.Warn("journal record failed", zap.String("payment_id", settled.ID), zap.Error(err))
	}
	return true, nil
}

// fail marks a still-queued payment FAILED with cause as its reason.
func (e *Engine) fail(ctx context.Context, paymentID string, cause error) error {
	reason := cause.Error()
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil || p.State != models.PaymentStateQueued {
			return nil
		}

		now := e.clock.Now()
		p.State = models.PaymentStateFailed
		p.FailReason = &reason
		p.ExecutedAt = &now
		if err := tx.UpdatePayment(ctx, *p); err != nil {
			return err
		}
		return appendMessage(ctx, tx, paymentID, models.MessageTypeFailed, now, map[string]any{"reason": reason})
	})
	if err != nil {
		return fmt.Errorf("mark payment %s failed: %w", paymentID, err)
	}

	kind := models.KindOf(cause)
	e.metrics.PaymentFailed(string(kind))
	e.logger.Info("payment failed",
		zap.String("payment_id", paymentID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
	)
	return nil
}

// settle performs origin FX, client moves, interbank settlement, destination
// FX and the final state transition on p.
func (e *Engine) settle(ctx context.Context, s *ledger.Session, p *models.Payment) error {
	tx := s.Tx()
	now := s.Now()
	debit := p.DebitAmount
	settlement := p.SettlementAmount
	credit := p.CreditAmount

	if p.HasOriginFX() {
		if err := s.FullDelta(ctx, p.FromClientID, p.DebitCurrency, debit.Neg()); err != nil {
			return err
		}
		if err := s.FullDelta(ctx, p.FromClientID, p.SettlementCurrency, settlement); err != nil {
			return err
		}
		if err := e.recordFX(ctx, s, p, p.FromBankID, p.DebitCurrency, p.SettlementCurrency, debit, settlement, "Payment origin FX"); err != nil {
			return err
		}
	}

	if err := s.ClientOnlyDelta(ctx, p.FromClientID, p.SettlementCurrency, settlement.Neg()); err != nil {
		return err
	}
	if err := s.ClientOnlyDelta(ctx, p.ToClientID, p.CreditCurrency, credit); err != nil {
		return err
	}

	if err := settleInterbank(ctx, s, p.FromBankID, p.ToBankID, p.SettlementCurrency, settlement); err != nil {
		return err
	}

	if p.HasDestinationFX() {
		if _, err := s.AdjustNostro(ctx, p.ToBankID, p.SettlementCurrency, settlement.Neg()); err != nil {
			if models.IsKind(err, models.KindNotFound) {
				return models.Errorf(models.KindNotFound, "missing nostro for beneficiary bank in %s", p.SettlementCurrency)
			}
			return err
		}
		toBank, err := tx.GetBank(ctx, p.ToBankID)
		if err != nil {
			return err
		}
		if toBank == nil {
			return models.Errorf(models.KindNotFound, "bank %s not found", p.ToBankID)
		}
		if p.CreditCurrency != toBank.BaseCurrency {
			if _, err := s.AdjustNostro(ctx, p.ToBankID, p.CreditCurrency, credit); err != nil {
				if models.IsKind(err, models.KindNotFound) {
					return models.Errorf(models.KindNotFound, "missing nostro for beneficiary bank in %s", p.CreditCurrency)
				}
				return err
			}
		}
		if err := e.recordFX(ctx, s, p, p.ToBankID, p.SettlementCurrency, p.CreditCurrency, settlement, credit, "Payment destination FX"); err != nil {
			return err
		}
	}

	if err := s.ValidateTouched(ctx); err != nil {
		return err
	}

	if err := appendMessage(ctx, tx, p.ID, models.MessageTypeLiquidation, now, map[string]any{
		"settlementCurrency": p.SettlementCurrency,
		"amount":             money.String(settlement),
		"route":              p.Route,
	}); err != nil {
		return err
	}

	p.State = models.PaymentStateExecuted
	p.ExecutedAt = &now
	if err := appendMessage(ctx, tx, p.ID, models.MessageTypeExecuted, now, nil); err != nil {
		return err
	}
	p.State = models.PaymentStateSettled
	p.SettledAt = &now
	if err := appendMessage(ctx, tx, p.ID, models.MessageTypeSettled, now, nil); err != nil {
		return err
	}
	return tx.UpdatePayment(ctx, *p)
}

func (e *Engine) recordFX(
	ctx context.Context,
	s *ledger.Session,
	p *models.Payment,
	bankID, from, to string,
	fromAmount, toAmount decimal.Decimal,
	reason string,
) error {
	tx := s.Tx()
	evt, err := fx.LogEvent(ctx, tx, fx.EventParams{
		PaymentID: p.ID,
		BankID:    bankID,
		Conversion: fx.Conversion{
			FromCurrency: from,
			ToCurrency:   to,
			FromAmount:   fromAmount,
			ToAmount:     toAmount,
		},
		Reason: reason,
		At:     s.Now(),
	})
	if err != nil {
		return err
	}

	bankName := bankID
	if b, err := tx.GetBank(ctx, bankID); err == nil && b != nil {
		bankName = b.Name
	}
	return appendMessage(ctx, tx, p.ID, models.MessageTypeFXConversion, s.Now(), map[string]any{
		"bankName":     bankName,
		"fromCurrency": from,
		"toCurrency":   to,
		"fromAmount":   money.String(evt.FromAmount),
		"toAmount":     money.String(evt.ToAmount),
		"rate":         evt.Rate.String(),
	})
}

// settleInterbank moves the settlement amount across correspondent accounts.
// Banks natively in currency clear directly and need no nostro movement.
// The recomputed route's first and last hops must match the nostro
// correspondents on record.
func settleInterbank(ctx context.Context, s *ledger.Session, fromBankID, toBankID, currency string, amount decimal.Decimal) error {
	if fromBankID == toBankID {
		return nil
	}
	tx := s.Tx()

	fromBank, err := tx.GetBank(ctx, fromBankID)
	if err != nil {
		return err
	}
	toBank, err := tx.GetBank(ctx, toBankID)
	if err != nil {
		return err
	}
	if fromBank == nil || toBank == nil {
		return models.Errorf(models.KindNotFound, "bank not found")
	}
	if fromBank.BaseCurrency == currency && toBank.BaseCurrency == currency {
		return nil
	}

	route, ok, err := routing.Route(ctx, tx, fromBankID, toBankID, currency)
	if err != nil {
		return err
	}
	if !ok || len(route) < 2 {
		return models.Errorf(models.KindRouteUnavailable, "no settlement route in %s from %s to %s", currency, fromBankID, toBankID)
	}
	firstHop := route[1]
	lastHop := route[len(route)-2]

	if fromBank.BaseCurrency != currency {
		if err := moveAlongHop(ctx, s, fromBankID, currency, firstHop, amount.Neg(), "originating"); err != nil {
			return err
		}
	}
	if toBank.BaseCurrency != currency {
		if err := moveAlongHop(ctx, s, toBankID, currency, lastHop, amount, "beneficiary"); err != nil {
			return err
		}
	}
	return nil
}

func moveAlongHop(ctx context.Context, s *ledger.Session, bankID, currency, hop string, delta decimal.Decimal, side string) error {
	nostro, err := s.Tx().GetNostro(ctx, bankID, currency)
	if err != nil {
		return err
	}
	if nostro == nil {
		return models.Errorf(models.KindNotFound, "missing nostro for %s bank in %s", side, currency)
	}
	if nostro.CorrespondentBankID != hop {
		return models.Errorf(models.KindRouteMismatch, "route mismatch for %s bank nostro correspondent", side)
	}
	_, err = s.AdjustNostro(ctx, bankID, currency, delta)
	return err
}

