package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer kinds.
const (
	KindTip      = "tip"
	KindWithdraw = "withdraw"
	KindSweep    = "sweep"
)

// Transfer is an audit record of funds the bot moved. The wallet stays the
// source of truth for balances.
type Transfer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Invocation string          `gorm:"index" json:"invocation"`
	Kind       string          `gorm:"index" json:"kind"`
	From       string          `gorm:"column:from_account;index" json:"from"`
	To         string          `gorm:"column:to_account" json:"to"` // account or external address
	Amount     decimal.Decimal `gorm:"type:text" json:"amount"`
	TxID       string          `json:"txid,omitempty"`
}
