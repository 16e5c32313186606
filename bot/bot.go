package bot

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"coin-tip-bot/config"
	"coin-tip-bot/format"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transport is the chat network the bot talks on.
type Transport interface {
	Nick() string
	Send(target, text string) error
}

// Wallet is the subset of the wallet daemon API the commands use.
type Wallet interface {
	GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error)
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
	GetAccountAddress(ctx context.Context, account string) (string, error)
	ValidateAddress(ctx context.Context, address string) (bool, error)
	Move(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error)
	SendFrom(ctx context.Context, from, address string, amount decimal.Decimal) (string, error)
}

// Verifier resolves the identification level of a chat identity.
type Verifier interface {
	Verify(ctx context.Context, identity string) (int, error)
}

type Bot struct {
	Transport Transport
	Wallet    Wallet
	Verifier  Verifier
	DB        *gorm.DB
	Config    *config.Config
	Format    *format.Formatter

	// SweepTimeout bounds the post-withdrawal fee sweep.
	SweepTimeout time.Duration

	command  *regexp.Regexp
	handlers map[string]handlerFunc
	locks    identityLocks
	wg       sync.WaitGroup
}

var errMoveRefused = errors.New("wallet refused the move")

type handlerFunc func(ctx context.Context, inv *invocation)

func New(cfg *config.Config, t Transport, w Wallet, v Verifier, db *gorm.DB) *Bot {
	bot := &Bot{
		Transport:    t,
		Wallet:       w,
		Verifier:     v,
		DB:           db,
		Config:       cfg,
		SweepTimeout: time.Minute,
		command:      regexp.MustCompile(`^(` + regexp.QuoteMeta(cfg.Prefix) + `)?(\S+)\s*(.*)$`),
		locks:        identityLocks{m: make(map[string]*identityLock)},
	}
	bot.Format = &format.Formatter{
		Coin: cfg.Coin.Values(),
		Global: func() map[string]any {
			return map[string]any{
				"nick":      t.Nick(),
				"prefix":    cfg.Prefix,
				"authority": cfg.Connection.Authority,
			}
		},
	}
	bot.registerHandlers()
	return bot
}

func (bot *Bot) registerHandlers() {
	bot.handlers = map[string]handlerFunc{
		"tip":      bot.handleTip,
		"balance":  bot.handleBalance,
		"address":  bot.handleAddress,
		"withdraw": bot.handleWithdraw,
		"help":     bot.handleStatic("help"),
		"terms":    bot.handleStatic("terms"),
	}
}

// Wait blocks until every running command and fee sweep has finished.
func (bot *Bot) Wait() {
	bot.wg.Wait()
}

// identityLocks serializes work per wallet account. Entries are dropped once
// nobody holds or waits for them.
type identityLocks struct {
	mu sync.Mutex
	m  map[string]*identityLock
}

type identityLock struct {
	sync.Mutex
	refs int
}

func (l *identityLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	e := l.m[key]
	if e == nil {
		e = &identityLock{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
