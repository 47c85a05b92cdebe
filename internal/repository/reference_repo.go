package repository

import (
	"context"
	"fmt"

	"corrsim/internal/models"
)

// FxRepository handles FX rates and the FX event history.
type FxRepository struct {
	db DBTX
}

func NewFxRepository(db DBTX) *FxRepository {
	return &FxRepository{db: db}
}

// AppendEvent records an executed conversion.
func (r *FxRepository) AppendEvent(ctx context.Context, e models.FxEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO fx_events (id, payment_id, bank_id, from_currency, to_currency, from_amount, to_amount, rate, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PaymentID, e.BankID, e.FromCurrency, e.ToCurrency, e.FromAmount, e.ToAmount, e.Rate, e.Reason, e.CreatedAt,
	)
	return mapError(err)
}

// ListEvents returns FX events newest first with the bank name filled in.
func (r *FxRepository) ListEvents(ctx context.Context) ([]models.FxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.payment_id, e.bank_id, COALESCE(b.name, ''), e.from_currency, e.to_currency,
			e.from_amount, e.to_amount, e.rate, e.reason, e.created_at
		FROM fx_events e
		LEFT JOIN banks b ON b.id = e.bank_id
		ORDER BY e.seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query fx events: %w", err)
	}
	return collect(rows, func(s scanner) (*models.FxEvent, error) {
		var e models.FxEvent
		err := s.Scan(&e.ID, &e.PaymentID, &e.BankID, &e.BankName, &e.FromCurrency, &e.ToCurrency,
			&e.FromAmount, &e.ToAmount, &e.Rate, &e.Reason, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &e, nil
	})
}

// PutRate upserts a USD pivot quote.
func (r *FxRepository) PutRate(ctx context.Context, rate models.FxRate) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO fx_rates (quote_currency, rate) VALUES ($1, $2)
		ON CONFLICT (quote_currency) DO UPDATE SET rate = EXCLUDED.rate`,
		rate.QuoteCurrency, rate.Rate,
	)
	return err
}

// GetRate returns the USD pivot quote for currency.
func (r *FxRepository) GetRate(ctx context.Context, quoteCurrency string) (*models.FxRate, error) {
	rate := models.FxRate{QuoteCurrency: quoteCurrency}
	err := r.db.QueryRow(ctx, `SELECT rate FROM fx_rates WHERE quote_currency = $1`, quoteCurrency).Scan(&rate.Rate)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ListRates returns every quote ordered by currency.
func (r *FxRepository) ListRates(ctx context.Context) ([]models.FxRate, error) {
	rows, err := r.db.Query(ctx, `SELECT quote_currency, rate FROM fx_rates ORDER BY quote_currency`)
	if err != nil {
		return nil, fmt.Errorf("query fx rates: %w", err)
	}
	return collect(rows, func(s scanner) (*models.FxRate, error) {
		var rate models.FxRate
		if err := s.Scan(&rate.QuoteCurrency, &rate.Rate); err != nil {
			return nil, err
		}
		return &rate, nil
	})
}

// ClearingRepository handles clearing windows.
type ClearingRepository struct {
	db DBTX
}

func NewClearingRepository(db DBTX) *ClearingRepository {
	return &ClearingRepository{db: db}
}

func (r *ClearingRepository) Put(ctx context.Context, w models.ClearingWindow) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO clearing_windows (currency, open_hour, close_hour) VALUES ($1, $2, $3)
		ON CONFLICT (currency) DO UPDATE SET open_hour = EXCLUDED.open_hour, close_hour = EXCLUDED.close_hour`,
		w.Currency, w.OpenHour, w.CloseHour,
	)
	return err
}

func (r *ClearingRepository) Get(ctx context.Context, currency string) (*models.ClearingWindow, error) {
	w := models.ClearingWindow{Currency: currency}
	err := r.db.QueryRow(ctx, `SELECT open_hour, close_hour FROM clearing_windows WHERE currency = $1`, currency).
		Scan(&w.OpenHour, &w.CloseHour)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *ClearingRepository) List(ctx context.Context) ([]models.ClearingWindow, error) {
	rows, err := r.db.Query(ctx, `SELECT currency, open_hour, close_hour FROM clearing_windows ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("query clearing windows: %w", err)
	}
	return collect(rows, func(s scanner) (*models.ClearingWindow, error) {
		var w models.ClearingWindow
		if err := s.Scan(&w.Currency, &w.OpenHour, &w.CloseHour); err != nil {
			return nil, err
		}
		return &w, nil
	})
}

// ClockRepository persists the single simulated clock record.
type ClockRepository struct {
	db DBTX
}

func NewClockRepository(db DBTX) *ClockRepository {
	return &ClockRepository{db: db}
}

func (r *ClockRepository) Get(ctx context.Context) (*models.ClockState, error) {
	var st models.ClockState
	err := r.db.QueryRow(ctx, `SELECT sim_time, last_update, tick, paused_tick FROM sim_clock WHERE id = 1`).
		Scan(&st.SimTime, &st.LastUpdate, &st.Tick, &st.PausedTick)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.SimTime = st.SimTime.UTC()
	return &st, nil
}

func (r *ClockRepository) Put(ctx context.Context, st models.ClockState) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sim_clock (id, sim_time, last_update, tick, paused_tick) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			sim_time = EXCLUDED.sim_time, last_update = EXCLUDED.last_update,
			tick = EXCLUDED.tick, paused_tick = EXCLUDED.paused_tick`,
		st.SimTime, st.LastUpdate, st.Tick, st.PausedTick,
	)
	return err
}

// CounterRepository hands out per-kind sequence numbers.
type CounterRepository struct {
	db DBTX
}

func NewCounterRepository(db DBTX) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next returns the next number for kind, starting at 1.
func (r *CounterRepository) Next(ctx context.Context, kind string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO counters (kind, next) VALUES ($1, 2)
		ON CONFLICT (kind) DO UPDATE SET next = counters.next + 1
		RETURNING next - 1`, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", kind, err)
	}
	return n, nil
}
