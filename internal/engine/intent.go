package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"corrsim/internal/fx"
	"corrsim/internal/ledger"
	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/routing"
	"corrsim/internal/store"
)

// CreateIntent validates and prices a payment and queues it.
//
// The settlement currency is the first of: the credit currency, then USD, that
// both banks can hold and the origin client can receive, and that has a route.
// Otherwise the credit currency is kept with an empty route and the payment is
// left to fail at execution.
func (e *Engine) CreateIntent(ctx context.Context, params models.CreatePaymentParams) (*models.Payment, error) {
	params.DebitCurrency = strings.ToUpper(strings.TrimSpace(params.DebitCurrency))
	params.CreditCurrency = strings.ToUpper(strings.TrimSpace(params.CreditCurrency))
	if !params.DebitAmount.IsPositive() {
		return nil, models.Errorf(models.KindInvalidInput, "debit amount must be positive")
	}
	if !ledger.ValidCurrencyCode(params.DebitCurrency) || !ledger.ValidCurrencyCode(params.CreditCurrency) {
		return nil, models.Errorf(models.KindInvalidCurrency, "invalid currency code")
	}

	var payment models.Payment
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := e.createIntent(ctx, ledger.NewSession(tx, e.clock.Now()), params)
		if err != nil {
			return err
		}
		payment = *p
		return nil
	})
	if err != nil {
		e.logger.Debug("payment intent rejected",
			zap.String("from_client_id", params.FromClientID),
			zap.String("to_client_id", params.ToClientID),
			zap.Error(err),
		)
		return nil, err
	}

	e.metrics.PaymentCreated(payment.SettlementCurrency)
	e.logger.Info("payment queued",
		zap.String("payment_id", payment.ID),
		zap.String("settlement_currency", payment.SettlementCurrency),
		zap.Strings("route", payment.Route),
	)
	return &payment, nil
}

func (e *Engine) createIntent(ctx context.Context, s *ledger.Session, params models.CreatePaymentParams) (*models.Payment, error) {
	tx := s.Tx()

	from, err := s.Client(ctx, params.FromClientID)
	if err != nil {
		return nil, err
	}
	to, err := s.Client(ctx, params.ToClientID)
	if err != nil {
		return nil, err
	}
	if !from.Kind.CanTransact() || !to.Kind.CanTransact() {
		return nil, models.Errorf(models.KindInvalidInput, "payments must be between regular or house clients")
	}

	balance, err := tx.GetBalance(ctx, from.ID, params.DebitCurrency)
	if err != nil {
		return nil, err
	}
	if !balance.IsPositive() {
		return nil, models.Errorf(models.KindInsufficientFunds,
			"client has no funds in %s. Current balance: %s", params.DebitCurrency, money.String(balance))
	}

	if err := s.CheckClientCurrency(ctx, from, params.DebitCurrency); err != nil {
		return nil, err
	}
	toAvail, err := s.AvailableCurrencies(ctx, to.BankID)
	if err != nil {
		return nil, err
	}
	if !toAvail.Has(params.CreditCurrency) {
		return nil, models.Errorf(models.KindInvalidCurrency,
			"currency %s is not available at destination bank %s. Available currencies: %s",
			params.CreditCurrency, to.BankID, strings.Join(toAvail.Currencies, ", "))
	}
	if err := s.CheckClientCurrency(ctx, to, params.CreditCurrency); err != nil {
		return nil, err
	}

	fromAvail, err := s.AvailableCurrencies(ctx, from.BankID)
	if err != nil {
		return nil, err
	}

	settlement, route, err := e.chooseSettlement(ctx, s, from, to.BankID, params.CreditCurrency, fromAvail, toAvail)
	if err != nil {
		return nil, err
	}

	debit := money.Quantize(params.DebitAmount)
	settleConv, err := fx.Convert(ctx, tx, params.DebitCurrency, settlement, debit)
	if err != nil {
		return nil, err
	}
	creditConv, err := fx.Convert(ctx, tx, settlement, params.CreditCurrency, settleConv.ToAmount)
	if err != nil {
		return nil, err
	}

	id, err := tx.NextID(ctx, models.IDKindPayment, models.IDPrefixPayment)
	if err != nil {
		return nil, err
	}
	payment := models.Payment{
		ID:                 id,
		FromClientID:       from.ID,
		ToClientID:         to.ID,
		FromBankID:         from.BankID,
		ToBankID:           to.BankID,
		DebitCurrency:      params.DebitCurrency,
		CreditCurrency:     params.CreditCurrency,
		DebitAmount:        debit,
		SettlementAmount:   settleConv.ToAmount,
		CreditAmount:       creditConv.ToAmount,
		SettlementCurrency: settlement,
		Route:              route,
		State:              models.PaymentStateQueued,
		CreatedAt:          s.Now(),
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if err := appendMessage(ctx, tx, id, models.MessageTypeInit, s.Now(), map[string]any{
		"route":              route,
		"debitCurrency":      payment.DebitCurrency,
		"creditCurrency":     payment.CreditCurrency,
		"settlementCurrency": settlement,
	}); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (e *Engine) chooseSettlement(
	ctx context.Context,
	s *ledger.Session,
	from *models.Client,
	toBankID, creditCurrency string,
	fromAvail, toAvail models.AvailableCurrencies,
) (string, []string, error) {
	var candidates []string
	if fromAvail.Has(creditCurrency) && toAvail.Has(creditCurrency) {
		candidates = append(candidates, creditCurrency)
	}
	if fromAvail.Has(models.USD) && toAvail.Has(models.USD) {
		candidates = append(candidates, models.USD)
	}

	for _, ccy := range candidates {
		if err := s.CheckClientCurrency(ctx, from, ccy); err != nil {
			if models.IsKind(err, models.KindInvalidCurrency) {
				continue
			}
			return "", nil, err
		}
		route, ok, err := routing.Route(ctx, s.Tx(), from.BankID, toBankID, ccy)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return ccy, route, nil
		}
	}

	// The origin client briefly holds the settlement currency during origin FX.
	if err := s.CheckClientCurrency(ctx, from, creditCurrency); err != nil {
		return "", nil, err
	}
	e.logger.Warn("no settlement route, deferring to execution",
		zap.String("from_bank_id", from.BankID),
		zap.String("to_bank_id", toBankID),
		zap.String("currency", creditCurrency),
	)
	return creditCurrency, []string{}, nil
}

func appendMessage(ctx context.Context, tx store.Tx, paymentID string, typ models.MessageType, at time.Time, details map[string]any) error {
	id, err := tx.NextID(ctx, models.IDKindMessage, models.IDPrefixMessage)
	if err != nil {
		return err
	}
	if details == nil {
		details = map[string]any{}
	}
	return tx.AppendMessage(ctx, models.PaymentMessage{
		ID:        id,
		PaymentID: paymentID,
		Type:      typ,
		CreatedAt: at,
		Details:   details,
	})
}
