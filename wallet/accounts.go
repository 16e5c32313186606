package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// GetBalance returns the balance of account counting only transactions with
// at least minConf confirmations.
func (c *Client) GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.Call(ctx, "getbalance", &balance, account, minConf)
	return balance, err
}

// TotalBalance returns the wallet-wide balance.
func (c *Client) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.Call(ctx, "getbalance", &balance)
	return balance, err
}

// GetAccountAddress returns the deposit address of account, creating the
// account and its address on first use.
func (c *Client) GetAccountAddress(ctx context.Context, account string) (string, error) {
	var address string
	err := c.Call(ctx, "getaccountaddress", &address, account)
	return address, err
}

type addressInfo struct {
	IsValid bool   `json:"isvalid"`
	Address string `json:"address"`
}

func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	var info addressInfo
	if err := c.Call(ctx, "validateaddress", &info, address); err != nil {
		return false, err
	}
	return info.IsValid, nil
}

// Move transfers amount between two wallet accounts without touching the
// chain.
func (c *Client) Move(ctx context.Context, from, to string, amt decimal.Decimal) (bool, error) {
	var ok bool
	err := c.Call(ctx, "move", &ok, from, to, amount(amt))
	return ok, err
}

// SendFrom pays amount from account to an external address and returns the
// transaction id.
func (c *Client) SendFrom(ctx context.Context, from, address string, amt decimal.Decimal) (string, error) {
	var txid string
	err := c.Call(ctx, "sendfrom", &txid, from, address, amount(amt))
	return txid, err
}
