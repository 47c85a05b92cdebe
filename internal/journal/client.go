package journal

import (
	"fmt"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"corrsim/internal/config"
)

// Client wraps the TigerBeetle client with nostro/vostro operations.
type Client struct {
	tb        tb.Client
	clusterID uint64
}

// NewClient creates a new TigerBeetle client.
func NewClient(cfg config.TigerBeetleConfig) (*Client, error) {
	addresses := make([]string, len(cfg.Addresses))
	copy(addresses, cfg.Addresses)

	client, err := tb.NewClient(tbtypes.ToUint128(cfg.ClusterID), addresses)
	if err != nil {
		return nil, fmt.Errorf("create TigerBeetle client: %w", err)
	}

	return &Client{
		tb:        client,
		clusterID: cfg.ClusterID,
	}, nil
}

// Close closes the TigerBeetle client connection.
func (c *Client) Close() {
	c.tb.Close()
}

// CreateAccounts creates accounts on one ledger. Accounts that already exist are accepted.
func (c *Client) CreateAccounts(ids []AccountID, ledger uint32, code uint16) error {
	accounts := make([]tbtypes.Account, len(ids))
	for i, id := range ids {
		accounts[i] = tbtypes.Account{
			ID:     tbtypes.BytesToUint128(id),
			Ledger: ledger,
			Code:   code,
		}
	}

	results, err := c.tb.CreateAccounts(accounts)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}

	for _, result := range results {
		if result.Result != tbtypes.AccountOK && result.Result != tbtypes.AccountExists {
			return fmt.Errorf("create account %d failed: %s", result.Index, result.Result.String())
		}
	}

	return nil
}

// CreateTransfers submits transfers in one batch. Linked transfers commit or fail together.
func (c *Client) CreateTransfers(transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	tbTransfers := make([]tbtypes.Transfer, len(transfers))
	for i, t := range transfers {
		tbTransfers[i] = t.toTigerBeetle()
	}

	results, err := c.tb.CreateTransfers(tbTransfers)
	if err != nil {
		return fmt.Errorf("create transfers: %w", err)
	}

	for _, result := range results {
		if result.Result != tbtypes.TransferOK {
			return fmt.Errorf("create transfer %d failed: %s", result.Index, result.Result.String())
		}
	}

	return nil
}
