package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coin-tip-bot/bot"
	"coin-tip-bot/config"
	"coin-tip-bot/logger"
	"coin-tip-bot/model"
	"coin-tip-bot/transport/irc"
	"coin-tip-bot/transport/telegram"
	"coin-tip-bot/verify"
	"coin-tip-bot/wallet"
	"coin-tip-bot/webadmin"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const farewell = "My master ordered me to leave."

// chatClient is a connected chat network.
type chatClient interface {
	bot.Transport
	Run(ctx context.Context) error
	Close(farewell string)
}

func main() {
	configPath := flag.String("config", "config/config.yml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrNoConfig) {
			log.Fatal().Err(err).Msg("Configuration file doesn't exist")
		}
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Init("tipbot", cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := wallet.NewClient(wallet.Options{
		Host:    cfg.RPC.Host,
		Port:    cfg.RPC.Port,
		User:    cfg.RPC.User,
		Pass:    cfg.RPC.Pass,
		Secure:  cfg.RPC.Secure,
		Timeout: cfg.RPC.Timeout,
	})

	probeCtx, cancelProbe := context.WithTimeout(ctx, cfg.RPC.Timeout)
	total, err := w.TotalBalance(probeCtx)
	cancelProbe()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to the wallet daemon")
	}
	log.Info().Str("balance", total.String()).Msgf("Connected to the %s wallet", cfg.Coin.FullName)

	db, err := model.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}

	// The transport is built before the bot it feeds. Commands outlive the
	// shutdown signal so that a transfer already in flight can finish.
	cmdCtx := context.WithoutCancel(ctx)
	var b *bot.Bot
	onMessage := func(from, target, text string) {
		if b != nil {
			b.HandleMessage(cmdCtx, from, target, text)
		}
	}

	var (
		client   chatClient
		verifier bot.Verifier
	)
	switch cfg.Connection.Network {
	case config.NetworkTelegram:
		tg, err := telegram.New(telegram.Options{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeout,
			Level:       cfg.Auth.Level,
		}, telegram.Handlers{OnMessage: onMessage})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram client")
		}
		client, verifier = tg, tg

	default:
		var v *verify.Verifier
		ircClient := irc.New(irc.Options{
			Host:             cfg.Connection.Host,
			Port:             cfg.Connection.Port,
			Secure:           cfg.Connection.Secure,
			Debug:            cfg.Connection.Debug,
			Nick:             cfg.Login.Nickname,
			User:             cfg.Login.Username,
			Name:             cfg.Login.Realname,
			Pass:             cfg.Login.Password,
			NickServPassword: cfg.Login.NickServPassword,
			Authority:        cfg.Connection.Authority,
			Channels:         cfg.Channels,
		}, irc.Handlers{
			OnMessage: onMessage,
			OnNotice: func(from, text string) {
				if v != nil {
					v.HandleNotice(from, text)
				}
			},
		})
		v = verify.New(ircClient, verify.Options{
			Authority:     cfg.Connection.Authority,
			StatusCommand: cfg.Connection.StatusCommand,
			Timeout:       cfg.Auth.Timeout,
		})
		client, verifier = ircClient, v
	}

	b = bot.New(cfg, client, w, verifier, db)

	// Scheduler
	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule.BalanceReport, b.ReportWalletBalance); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Schedule.BalanceReport).Msg("Invalid balance report schedule")
	}
	if _, err := c.AddFunc(cfg.Schedule.Prune, b.PruneLedger); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Schedule.Prune).Msg("Invalid prune schedule")
	}
	c.Start()

	var admin *webadmin.Server
	if cfg.WebAdmin.Enabled {
		admin = webadmin.New(cfg, w, db)
		go func() {
			if err := admin.Start(); err != nil {
				log.Error().Err(err).Msg("Webadmin stopped")
			}
		}()
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Transport stopped")
		}
	}()

	log.Info().Str("network", cfg.Connection.Network).Msg("Bot started...")
	<-ctx.Done()

	log.Info().Msg("Shutting down")
	client.Close(farewell)
	cancelRun()
	<-done

	waited := make(chan struct{})
	go func() {
		b.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Gave up waiting for running commands")
	}

	<-c.Stop().Done()

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webadmin shutdown failed")
		}
	}
}

