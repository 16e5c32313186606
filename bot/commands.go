package bot

import (
	"context"
	"regexp"
	"strings"

	"coin-tip-bot/model"
	"coin-tip-bot/wallet"

	"github.com/shopspring/decimal"
)

var (
	tipArgs      = regexp.MustCompile(`^@?(\S+)\s+(\d+)(?:\s|$)`)
	withdrawArgs = regexp.MustCompile(`^(\S+)$`)
)

func (bot *Bot) handleTip(ctx context.Context, inv *invocation) {
	m := tipArgs.FindStringSubmatch(inv.args)
	if m == nil {
		bot.say(inv, "tip_usage", nil)
		return
	}
	to := m[1]
	amount, err := decimal.NewFromString(m[2])
	if err != nil || !amount.IsPositive() {
		bot.say(inv, "tip_usage", nil)
		return
	}

	if strings.EqualFold(to, inv.from) {
		bot.say(inv, "self_tip", map[string]any{"name": inv.from})
		return
	}
	if amount.LessThan(bot.Config.Coin.MinTip) {
		bot.say(inv, "tip_too_small", map[string]any{"from": inv.from, "to": to, "amount": amount})
		return
	}

	balance, err := bot.Wallet.GetBalance(ctx, inv.account, bot.Config.Coin.MinConfirmations)
	if err != nil {
		bot.fail(inv, "getbalance", err)
		return
	}
	if balance.LessThan(amount) {
		inv.log.Info().
			Str("to", to).
			Str("amount", amount.String()).
			Str("balance", balance.String()).
			Msg("Tip exceeds balance")
		bot.say(inv, "no_funds", map[string]any{
			"name":    inv.from,
			"balance": balance,
			"short":   amount.Sub(balance),
			"amount":  amount,
		})
		return
	}

	toAccount := strings.ToLower(to)
	// Creates the recipient's account if it does not exist yet.
	if _, err := bot.Wallet.GetAccountAddress(ctx, toAccount); err != nil {
		bot.fail(inv, "getaccountaddress", err)
		return
	}
	ok, err := bot.Wallet.Move(ctx, inv.account, toAccount, amount)
	if err == nil && !ok {
		err = errMoveRefused
	}
	if err != nil {
		bot.fail(inv, "move", err)
		return
	}

	inv.log.Info().Str("to", to).Str("amount", amount.String()).Msg("Tipped")
	bot.record(inv, &model.Transfer{Kind: model.KindTip, From: inv.account, To: toAccount, Amount: amount})
	bot.say(inv, "tipped", map[string]any{"from": inv.from, "to": to, "amount": amount})
}

func (bot *Bot) handleBalance(ctx context.Context, inv *invocation) {
	balance, err := bot.Wallet.GetBalance(ctx, inv.account, bot.Config.Coin.MinConfirmations)
	if err != nil {
		bot.fail(inv, "getbalance", err)
		return
	}

	total, err := bot.Wallet.GetBalance(ctx, inv.account, 0)
	if err != nil {
		inv.log.Warn().Err(err).Msg("Could not fetch unconfirmed balance")
		bot.say(inv, "balance", map[string]any{"name": inv.account, "balance": balance})
		return
	}

	bot.say(inv, "balance_unconfirmed", map[string]any{
		"name":        inv.account,
		"balance":     balance,
		"unconfirmed": total.Sub(balance),
	})
}

func (bot *Bot) handleAddress(ctx context.Context, inv *invocation) {
	address, err := bot.Wallet.GetAccountAddress(ctx, inv.account)
	if err != nil {
		bot.fail(inv, "getaccountaddress", err)
		return
	}
	bot.say(inv, "deposit_address", map[string]any{"name": inv.account, "address": address})
}

func (bot *Bot) handleWithdraw(ctx context.Context, inv *invocation) {
	m := withdrawArgs.FindStringSubmatch(inv.args)
	if m == nil {
		bot.say(inv, "withdraw_usage", nil)
		return
	}
	address := m[1]

	valid, err := bot.Wallet.ValidateAddress(ctx, address)
	if err != nil {
		bot.fail(inv, "validateaddress", err)
		return
	}
	if !valid {
		inv.log.Warn().Str("address", address).Msg("Withdrawal to invalid address")
		bot.say(inv, "invalid_address", map[string]any{"name": inv.from, "address": address})
		return
	}

	balance, err := bot.Wallet.GetBalance(ctx, inv.account, bot.Config.Coin.MinConfirmations)
	if err != nil {
		bot.fail(inv, "getbalance", err)
		return
	}
	if balance.LessThan(bot.Config.Coin.MinWithdraw) {
		inv.log.Warn().
			Str("balance", balance.String()).
			Str("min", bot.Config.Coin.MinWithdraw.String()).
			Msg("Withdrawal below minimum")
		bot.say(inv, "withdraw_too_small", map[string]any{"name": inv.from, "balance": balance})
		return
	}

	payout := balance.Sub(bot.Config.Coin.WithdrawalFee)
	txid, err := bot.Wallet.SendFrom(ctx, inv.account, address, payout)
	if err != nil {
		bot.fail(inv, "sendfrom", err)
		return
	}

	inv.log.Info().Str("address", address).Str("amount", payout.String()).Str("txid", txid).Msg("Withdrawal sent")
	bot.record(inv, &model.Transfer{Kind: model.KindWithdraw, From: inv.account, To: address, Amount: payout, TxID: txid})
	bot.say(inv, "withdraw_success", map[string]any{
		"name":        inv.from,
		"address":     address,
		"balance":     balance,
		"amount":      payout,
		"transaction": txid,
	})

	bot.startSweep(inv)
}

func (bot *Bot) handleStatic(name string) handlerFunc {
	return func(_ context.Context, inv *invocation) {
		bot.say(inv, name, nil)
	}
}

// startSweep moves what is left of the withdrawal fee after the network fee
// into the bot's own account. Failures are only logged.
func (bot *Bot) startSweep(inv *invocation) {
	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		if bot.Config.SerializePerIdentity {
			unlock := bot.locks.lock(inv.account)
			defer unlock()
		}
		ctx, cancel := context.WithTimeout(context.Background(), bot.SweepTimeout)
		defer cancel()
		bot.sweep(ctx, inv)
	}()
}

func (bot *Bot) sweep(ctx context.Context, inv *invocation) {
	lg := inv.log.With().Str("task", "sweep").Logger()

	rest, err := bot.Wallet.GetBalance(ctx, inv.account, wallet.DefaultConfirmations)
	if err != nil {
		lg.Error().Err(err).Msg("Something went wrong while transferring fees")
		return
	}
	// Never take more than the fee: anything above it arrived after the
	// withdrawal and belongs to the user.
	amount := decimal.Min(rest, bot.Config.Coin.WithdrawalFee)
	if !amount.IsPositive() {
		lg.Debug().Str("balance", rest.String()).Msg("Nothing to sweep")
		return
	}

	ok, err := bot.Wallet.Move(ctx, inv.account, bot.Config.Login.Nickname, amount)
	if err == nil && !ok {
		err = errMoveRefused
	}
	if err != nil {
		lg.Error().Err(err).Msg("Something went wrong while transferring fees")
		return
	}
	lg.Info().Str("amount", amount.String()).Msg("Swept withdrawal fee")
	bot.record(inv, &model.Transfer{Kind: model.KindSweep, From: inv.account, To: bot.Config.Login.Nickname, Amount: amount})
}

// record writes t to the ledger. The wallet has already applied the
// transfer, so a ledger failure is only logged.
func (bot *Bot) record(inv *invocation, t *model.Transfer) {
	if bot.DB == nil {
		return
	}
	t.Invocation = inv.id
	if err := model.RecordTransfer(bot.DB, t); err != nil {
		inv.log.Error().Err(err).Str("kind", t.Kind).Msg("Failed to record transfer")
	}
}
