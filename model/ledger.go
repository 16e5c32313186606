package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the sqlite ledger at path and migrates it.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return db, nil
}

// RecordTransfer stores t. On-chain transaction ids are normalized; a
// malformed one is kept as returned by the wallet.
func RecordTransfer(db *gorm.DB, t *Transfer) error {
	if t.TxID != "" {
		h, err := chainhash.NewHashFromStr(t.TxID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("txid", t.TxID).Msg("Unexpected transaction id format")
		case len(t.TxID) != chainhash.MaxHashStringSize:
			log.Warn().Str("txid", t.TxID).Msg("Short transaction id")
		default:
			t.TxID = h.String()
		}
	}
	t.From = strings.ToLower(t.From)
	return db.Create(t).Error
}

// RecentTransfers returns the newest transfers first. A non-empty account
// limits the result to transfers from or to that account.
func RecentTransfers(db *gorm.DB, limit int, account string) ([]Transfer, error) {
	q := db.Order("created_at DESC, id DESC").Limit(limit)
	if account != "" {
		account = strings.ToLower(account)
		q = q.Where("from_account = ? OR to_account = ?", account, account)
	}
	var transfers []Transfer
	err := q.Find(&transfers).Error
	return transfers, err
}

// PruneTransfers deletes records created before cutoff and returns how many
// were removed.
func PruneTransfers(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Where("created_at < ?", cutoff).Delete(&Transfer{})
	return res.RowsAffected, res.Error
}
