// Package irc connects the bot to an IRC network.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	goirc "gopkg.in/irc.v4"
)

var ErrNotConnected = errors.New("not connected")

type Options struct {
	Host             string
	Port             int
	Secure           bool
	Debug            bool
	Nick             string
	User             string
	Name             string
	Pass             string
	NickServPassword string
	Authority        string
	Channels         []string
}

// Handlers receive inbound traffic. Either may be nil.
type Handlers struct {
	OnMessage func(from, target, text string)
	OnNotice  func(from, text string)
}

type Client struct {
	opts     Options
	handlers Handlers

	mu     sync.Mutex
	conn   net.Conn
	client *goirc.Client
}

func New(opts Options, handlers Handlers) *Client {
	if opts.Authority == "" {
		opts.Authority = "NickServ"
	}
	return &Client{opts: opts, handlers: handlers}
}

// Run keeps the connection up until ctx is done, reconnecting with backoff
// when the server drops it.
func (c *Client) Run(ctx context.Context) error {
	backoff := 5 * time.Second
	for {
		started := time.Now()
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > 2*time.Minute {
			backoff = 5 * time.Second
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("Disconnected from IRC server")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Minute {
			backoff *= 2
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	log.Info().Str("server", addr).Bool("tls", c.opts.Secure).Msg("Connecting to the server...")
	var (
		conn net.Conn
		err  error
	)
	if c.opts.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: c.opts.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}

	client := goirc.NewClient(conn, goirc.ClientConfig{
		Nick:      c.opts.Nick,
		Pass:      c.opts.Pass,
		User:      c.opts.User,
		Name:      c.opts.Name,
		SendLimit: 300 * time.Millisecond,
		SendBurst: 4,
		Handler:   goirc.HandlerFunc(c.handle),
	})

	c.mu.Lock()
	c.conn, c.client = conn, client
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn, c.client = nil, nil
		c.mu.Unlock()
		conn.Close()
	}()

	return client.RunContext(ctx)
}

// Nick returns the nickname currently held on the server.
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		if nick := c.client.CurrentNick(); nick != "" {
			return nick
		}
	}
	return c.opts.Nick
}

// Send writes a PRIVMSG to target.
func (c *Client) Send(target, text string) error {
	return c.write("PRIVMSG", target, sanitize(text))
}

// Close leaves the network with a QUIT carrying farewell.
func (c *Client) Close(farewell string) {
	if err := c.write("QUIT", farewell); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Warn().Err(err).Msg("Failed to send QUIT")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// write sends outside the lock; WriteMessage may wait on the send limiter.
func (c *Client) write(command string, params ...string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.WriteMessage(&goirc.Message{Command: command, Params: params})
}

func (c *Client) handle(client *goirc.Client, m *goirc.Message) {
	if c.opts.Debug {
		log.Debug().Str("line", m.String()).Msg("IRC <-")
	}

	var from string
	if m.Prefix != nil {
		from = m.Prefix.Name
	}

	switch m.Command {
	case "001":
		log.Info().Str("server", from).Msg("Connected")
		if c.opts.NickServPassword != "" {
			client.WriteMessage(&goirc.Message{
				Command: "PRIVMSG",
				Params:  []string{c.opts.Authority, "IDENTIFY " + c.opts.NickServPassword},
			})
		}
		for _, ch := range c.opts.Channels {
			client.WriteMessage(&goirc.Message{Command: "JOIN", Params: []string{ch}})
		}

	case "PRIVMSG":
		if len(m.Params) < 2 || from == "" {
			return
		}
		text := m.Trailing()
		if strings.HasPrefix(text, "\x01") {
			return // CTCP
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(from, m.Params[0], text)
		}

	case "NOTICE":
		if len(m.Params) < 2 || from == "" {
			return
		}
		if c.handlers.OnNotice != nil {
			c.handlers.OnNotice(from, m.Trailing())
		}

	case "ERROR":
		log.Error().Str("reason", m.Trailing()).Msg("Received an error from IRC network")
	}
}

func sanitize(text string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
}
