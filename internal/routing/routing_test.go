package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrsim/internal/models"
	"corrsim/internal/store"
)

func bank(id, name, ccy string) models.Bank {
	return models.Bank{ID: id, Name: name, BaseCurrency: ccy}
}

func nostro(owner, corr, ccy string) models.NostroAccount {
	return models.NostroAccount{ID: "NOS_" + owner + ccy, OwnerBankID: owner, CorrespondentBankID: corr, Currency: ccy}
}

func TestShortestPath(t *testing.T) {
	banks := []models.Bank{
		bank("B1", "Alpha", "GBP"),
		bank("B2", "Beta", "EUR"),
		bank("B3", "Gamma", "USD"),
		bank("B4", "Delta", "USD"),
		bank("B5", "Echo", "JPY"),
	}
	nostros := []models.NostroAccount{
		nostro("B1", "B3", "USD"),
		nostro("B2", "B4", "USD"),
		nostro("B5", "B2", "EUR"), // EUR edge, irrelevant for USD
	}
	g := newGraph("USD", banks, nostros)

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"same bank", "B1", "B1", []string{"B1"}},
		{"direct nostro", "B1", "B3", []string{"B1", "B3"}},
		{"same base currency", "B3", "B4", []string{"B3", "B4"}},
		{"two correspondents", "B1", "B2", []string{"B1", "B3", "B4", "B2"}},
		{"unreachable", "B1", "B5", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.ShortestPath(tt.from, tt.to))
		})
	}
}

func TestGraph_NeighborsSortedByName(t *testing.T) {
	banks := []models.Bank{
		bank("B1", "Origin", "GBP"),
		bank("B2", "Zulu", "USD"),
		bank("B3", "Alpha", "USD"),
		bank("B4", "Mike", "USD"),
		bank("B5", "Target", "EUR"),
	}
	nostros := []models.NostroAccount{
		nostro("B1", "B2", "USD"),
		nostro("B5", "B3", "USD"),
	}
	g := newGraph("USD", banks, nostros)

	assert.Equal(t, []string{"B3", "B4", "B1"}, g.Neighbors["B2"])

	first := g.ShortestPath("B1", "B5")
	second := g.ShortestPath("B1", "B5")
	assert.Equal(t, []string{"B1", "B2", "B3", "B5"}, first)
	assert.Equal(t, first, second)
}

func TestGraph_IgnoresNostroAtForeignCorrespondent(t *testing.T) {
	banks := []models.Bank{
		bank("B1", "Alpha", "GBP"),
		bank("B2", "Beta", "EUR"),
	}
	// a USD nostro held at a EUR bank does not open a USD edge
	g := newGraph("USD", banks, []models.NostroAccount{nostro("B1", "B2", "USD")})
	assert.Nil(t, g.ShortestPath("B1", "B2"))
}

func TestRoute_ReadsStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateBank(ctx, bank("B1", "Alpha", "USD")))
		require.NoError(t, tx.CreateBank(ctx, bank("B2", "Beta", "EUR")))
		return tx.CreateNostro(ctx, nostro("B1", "B2", "EUR"))
	}))

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		path, ok, err := Route(ctx, tx, "B1", "B2", "EUR")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"B1", "B2"}, path)

		_, ok, err = Route(ctx, tx, "B1", "B2", "GBP")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
