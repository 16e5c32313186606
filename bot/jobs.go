package bot

import (
	"context"
	"time"

	"coin-tip-bot/model"

	"github.com/rs/zerolog/log"
)

// ReportWalletBalance is called by the cron scheduler. It logs the wallet's
// total balance and warns when it falls below the configured reserve.
func (bot *Bot) ReportWalletBalance() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	total, err := bot.Wallet.TotalBalance(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Could not fetch wallet balance")
		return
	}

	reserve := bot.Config.Schedule.LowReserve
	if reserve.IsPositive() && total.LessThan(reserve) {
		log.Warn().
			Str("balance", total.String()).
			Str("reserve", reserve.String()).
			Msgf("Wallet balance below reserve (%s)", bot.Config.Coin.ShortName)
		return
	}
	log.Info().Str("balance", total.String()).Msgf("Wallet balance (%s)", bot.Config.Coin.ShortName)
}

// PruneLedger is called by the cron scheduler to drop old transfer records.
func (bot *Bot) PruneLedger() {
	if bot.DB == nil {
		return
	}
	cutoff := time.Now().Add(-bot.Config.Schedule.Retention)
	n, err := model.PruneTransfers(bot.DB, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune ledger")
		return
	}
	if n > 0 {
		log.Info().Int64("removed", n).Time("before", cutoff).Msg("Pruned ledger")
	}
}
