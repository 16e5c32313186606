// Package telegram connects the bot to Telegram. Telegram authenticates its
// users itself, so the client also answers identity checks.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/telebot.v3"
)

var ErrUnknownRecipient = errors.New("unknown recipient")

type Options struct {
	Token       string
	PollTimeout time.Duration
	// Level is reported for users that have a Telegram username.
	Level int
	// Offline skips the getMe call, for tests.
	Offline bool
}

// Handlers mirror the IRC transport; Telegram has no notices.
type Handlers struct {
	OnMessage func(from, target, text string)
}

type Client struct {
	B        *telebot.Bot
	opts     Options
	handlers Handlers

	mu    sync.RWMutex
	users map[string]int64 // lower-case username -> user id
}

func New(opts Options, handlers Handlers) (*Client, error) {
	pref := telebot.Settings{
		Token:   opts.Token,
		Poller:  &telebot.LongPoller{Timeout: opts.PollTimeout},
		Offline: opts.Offline,
		OnError: func(err error, c telebot.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}

	c := &Client{
		B:        b,
		opts:     opts,
		handlers: handlers,
		users:    make(map[string]int64),
	}
	b.Handle(telebot.OnText, c.handleText)
	return c, nil
}

// Run polls for updates until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.B.Stop()
	}()
	log.Info().Str("bot", c.Nick()).Msg("Polling Telegram")
	c.B.Start()
	return ctx.Err()
}

// Close is a no-op: leaving is done by cancelling Run's context, and
// Telegram has nowhere to post a farewell.
func (c *Client) Close(farewell string) {
	log.Info().Str("farewell", farewell).Msg("Stopping Telegram client")
}

func (c *Client) Nick() string {
	if c.B.Me == nil {
		return ""
	}
	return c.B.Me.Username
}

// Send posts text to a chat id or to a user seen before, by username.
func (c *Client) Send(target, text string) error {
	to, err := c.recipient(target)
	if err != nil {
		return err
	}
	_, err = c.B.Send(to, text)
	return err
}

// Verify reports the configured level for usernames seen on inbound
// messages and 0 for anybody else.
func (c *Client) Verify(_ context.Context, identity string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.users[strings.ToLower(identity)]; ok {
		return c.opts.Level, nil
	}
	return 0, nil
}

func (c *Client) recipient(target string) (telebot.Recipient, error) {
	if id, err := strconv.ParseInt(strings.TrimPrefix(target, "#"), 10, 64); err == nil {
		return telebot.ChatID(id), nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.users[strings.ToLower(strings.TrimPrefix(target, "@"))]; ok {
		return telebot.ChatID(id), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, target)
}

func (c *Client) handleText(ctx telebot.Context) error {
	c.dispatch(ctx.Message())
	return nil
}

func (c *Client) dispatch(m *telebot.Message) {
	if m == nil || m.Sender == nil || m.Chat == nil || m.Sender.IsBot {
		return
	}

	// Users without a username get a handle nobody can claim, which never
	// verifies.
	from := "#" + strconv.FormatInt(m.Sender.ID, 10)
	if m.Sender.Username != "" {
		from = m.Sender.Username
		c.mu.Lock()
		c.users[strings.ToLower(from)] = m.Sender.ID
		c.mu.Unlock()
	}

	target := strconv.FormatInt(m.Chat.ID, 10)
	if m.Private() {
		target = c.Nick()
	}

	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(from, target, c.stripMention(m.Text))
	}
}

// stripMention turns "/tip@SomeBot bob 5" into "/tip bob 5" when the
// mention names this bot.
func (c *Client) stripMention(text string) string {
	head, rest, _ := strings.Cut(text, " ")
	cmd, mention, ok := strings.Cut(head, "@")
	if !ok || !strings.EqualFold(mention, c.Nick()) {
		return text
	}
	if rest == "" {
		return cmd
	}
	return cmd + " " + rest
}
