package fx

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrsim/internal/models"
	"corrsim/internal/money"
	"corrsim/internal/store"
)

func withRates(t *testing.T, fn func(ctx context.Context, tx store.Tx)) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		for ccy, r := range map[string]string{"EUR": "0.85", "GBP": "0.77", "JPY": "150"} {
			require.NoError(t, tx.PutFxRate(ctx, models.FxRate{QuoteCurrency: ccy, Rate: money.MustParse(r)}))
		}
		fn(ctx, tx)
		return nil
	}))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		from, to string
		amount   string
		want     string
	}{
		{"USD", "USD", "12.345", "12.35"},
		{"USD", "EUR", "100", "85.00"},
		{"EUR", "USD", "85", "100.00"},
		{"GBP", "USD", "77", "100.00"},
		{"GBP", "EUR", "77", "85.00"},
		{"USD", "JPY", "10.01", "1501.50"},
		{"EUR", "GBP", "10", "9.06"},
	}

	withRates(t, func(ctx context.Context, tx store.Tx) {
		for _, tt := range tests {
			t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
				c, err := Convert(ctx, tx, tt.from, tt.to, money.MustParse(tt.amount))
				require.NoError(t, err)
				assert.Equal(t, tt.want, money.String(c.ToAmount))
			})
		}
	})
}

func TestConvert_IdentityRateIsOne(t *testing.T) {
	withRates(t, func(ctx context.Context, tx store.Tx) {
		c, err := Convert(ctx, tx, "EUR", "EUR", decimal.NewFromInt(5))
		require.NoError(t, err)
		assert.True(t, c.Rate.Equal(decimal.NewFromInt(1)))
	})
}

func TestConvert_MissingRate(t *testing.T) {
	withRates(t, func(ctx context.Context, tx store.Tx) {
		_, err := Convert(ctx, tx, "USD", "XAU", decimal.NewFromInt(1))
		require.Error(t, err)
		assert.Equal(t, models.KindInvalidCurrency, models.KindOf(err))
	})
}

func TestConvertToTarget(t *testing.T) {
	withRates(t, func(ctx context.Context, tx store.Tx) {
		c, err := ConvertToTarget(ctx, tx, "USD", "EUR", money.MustParse("85"))
		require.NoError(t, err)
		assert.Equal(t, "100.00", money.String(c.FromAmount))
		assert.Equal(t, "85.00", money.String(c.ToAmount))

		back, err := Convert(ctx, tx, "USD", "EUR", c.FromAmount)
		require.NoError(t, err)
		assert.True(t, back.ToAmount.Equal(c.ToAmount))
	})
}

func TestLogEvent(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	withRates(t, func(ctx context.Context, tx store.Tx) {
		c, err := Convert(ctx, tx, "USD", "EUR", money.MustParse("40"))
		require.NoError(t, err)

		evt, err := LogEvent(ctx, tx, EventParams{PaymentID: "PAY_0001", BankID: "B_0001", Conversion: c, Reason: "test", At: at})
		require.NoError(t, err)
		assert.Equal(t, "FX_0001", evt.ID)
		require.NotNil(t, evt.PaymentID)
		assert.Equal(t, "PAY_0001", *evt.PaymentID)
		assert.True(t, evt.Rate.Equal(money.MustParse("0.85")))
		assert.True(t, evt.ToAmount.Equal(evt.FromAmount.Mul(evt.Rate).Round(2)))

		events, err := tx.ListFxEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 1)

		manual, err := LogEvent(ctx, tx, EventParams{BankID: "B_0001", Conversion: c, Reason: "manual", At: at})
		require.NoError(t, err)
		assert.Nil(t, manual.PaymentID)
	})
}
