// Package config loads the bot's YAML configuration and applies secrets from
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"coin-tip-bot/verify"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrNoConfig = errors.New("configuration file does not exist")

const (
	NetworkIRC      = "irc"
	NetworkTelegram = "telegram"
)

type Config struct {
	Log struct {
		File  string `yaml:"file" env:"LOG_FILE"`
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Connection Connection `yaml:"connection"`
	Login      Login      `yaml:"login"`
	Telegram   Telegram   `yaml:"telegram"`
	Channels   []string   `yaml:"channels"`
	RPC        RPC        `yaml:"rpc"`
	Coin       Coin       `yaml:"coin"`
	Auth       Auth       `yaml:"auth"`

	// Prefix marks a command in a channel, e.g. "!tip".
	Prefix               string `yaml:"prefix"`
	SerializePerIdentity bool   `yaml:"serialize_per_identity" env:"SERIALIZE_PER_IDENTITY"`

	Commands map[string]Command `yaml:"commands"`
	Messages map[string]Message `yaml:"messages"`

	Database struct {
		Path string `yaml:"path" env:"DATABASE_PATH"`
	} `yaml:"database"`

	WebAdmin WebAdmin `yaml:"webadmin"`
	Schedule Schedule `yaml:"schedule"`
}

type Connection struct {
	Network       string `yaml:"network" env:"NETWORK"`
	Host          string `yaml:"host" env:"IRC_HOST"`
	Port          int    `yaml:"port" env:"IRC_PORT"`
	Secure        bool   `yaml:"secure"`
	Debug         bool   `yaml:"debug"`
	StatusCommand string `yaml:"status_command"`
	Authority     string `yaml:"authority"`
}

type Login struct {
	Nickname         string `yaml:"nickname"`
	Username         string `yaml:"username"`
	Realname         string `yaml:"realname"`
	Password         string `yaml:"password" env:"IRC_PASSWORD"`
	NickServPassword string `yaml:"nickserv_password" env:"NICKSERV_PASSWORD"`
}

type Telegram struct {
	Token       string        `yaml:"token" env:"TELEGRAM_TOKEN"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type RPC struct {
	Host    string        `yaml:"host" env:"RPC_HOST"`
	Port    int           `yaml:"port" env:"RPC_PORT"`
	User    string        `yaml:"user" env:"RPC_USER"`
	Pass    string        `yaml:"pass" env:"RPC_PASS"`
	Secure  bool          `yaml:"secure"`
	Timeout time.Duration `yaml:"timeout"`
}

type Coin struct {
	FullName         string          `yaml:"full_name"`
	ShortName        string          `yaml:"short_name"`
	MinTip           decimal.Decimal `yaml:"min_tip"`
	MinWithdraw      decimal.Decimal `yaml:"min_withdraw"`
	WithdrawalFee    decimal.Decimal `yaml:"withdrawal_fee"`
	MinConfirmations int             `yaml:"min_confirmations"`
}

// Values exposes the coin settings to message templates.
func (c Coin) Values() map[string]any {
	return map[string]any{
		"full_name":         c.FullName,
		"short_name":        c.ShortName,
		"min_tip":           c.MinTip,
		"min_withdraw":      c.MinWithdraw,
		"withdrawal_fee":    c.WithdrawalFee,
		"min_confirmations": c.MinConfirmations,
	}
}

type Auth struct {
	Level   int           `yaml:"level"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebAdmin struct {
	Enabled        bool     `yaml:"enabled" env:"WEBADMIN_ENABLED"`
	Port           int      `yaml:"port" env:"WEBADMIN_PORT"`
	User           string   `yaml:"user" env:"WEBADMIN_USER"`
	PasswordHash   string   `yaml:"password_hash" env:"WEBADMIN_PASSWORD_HASH"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"WEBADMIN_ALLOWED_ORIGINS" envSeparator:","`
}

type Schedule struct {
	BalanceReport string          `yaml:"balance_report"`
	Prune         string          `yaml:"prune"`
	Retention     time.Duration   `yaml:"retention"`
	LowReserve    decimal.Decimal `yaml:"low_reserve"`
}

// Command switches a command on or off per context. Unset switches count as
// enabled.
type Command struct {
	Enabled *bool `yaml:"enabled"`
	Channel *bool `yaml:"channel"`
	PM      *bool `yaml:"pm"`
}

func (c Command) IsEnabled() bool      { return c.Enabled == nil || *c.Enabled }
func (c Command) ChannelEnabled() bool { return c.IsEnabled() && (c.Channel == nil || *c.Channel) }
func (c Command) PMEnabled() bool      { return c.IsEnabled() && (c.PM == nil || *c.PM) }

// Message is a template given either as a single string or a list of lines.
type Message []string

func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*m = Message{value.Value}
		return nil
	case yaml.SequenceNode:
		var lines []string
		if err := value.Decode(&lines); err != nil {
			return err
		}
		*m = lines
		return nil
	}
	return fmt.Errorf("line %d: message must be a string or a list of strings", value.Line)
}

// Load reads the YAML file at path, overlays secrets from the environment
// (and a .env file if present), fills defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	// Defaults for switches whose zero value is meaningful.
	cfg := &Config{SerializePerIdentity: true}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Missing .env is fine, variables may be set directly.
	_ = godotenv.Load()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Connection.Network == "" {
		c.Connection.Network = NetworkIRC
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = 6667
		if c.Connection.Secure {
			c.Connection.Port = 6697
		}
	}
	if c.Connection.StatusCommand == "" {
		c.Connection.StatusCommand = "ACC"
	}
	if c.Connection.Authority == "" {
		c.Connection.Authority = "NickServ"
	}
	if c.Login.Username == "" {
		c.Login.Username = c.Login.Nickname
	}
	if c.Login.Realname == "" {
		c.Login.Realname = c.Login.Nickname
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 10 * time.Second
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 30 * time.Second
	}
	if c.Auth.Level == 0 {
		c.Auth.Level = verify.FullyAuthorized
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = 30 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if len(c.Commands) == 0 {
		c.Commands = map[string]Command{}
		for _, name := range []string{"tip", "balance", "address", "withdraw", "help", "terms"} {
			c.Commands[name] = Command{}
		}
	}
	if c.Messages == nil {
		c.Messages = map[string]Message{}
	}
	for name, msg := range defaultMessages {
		if _, ok := c.Messages[name]; !ok {
			c.Messages[name] = msg
		}
	}
	if c.Database.Path == "" {
		c.Database.Path = "tipbot.db"
	}
	if c.WebAdmin.Port == 0 {
		c.WebAdmin.Port = 8080
	}
	if c.Schedule.BalanceReport == "" {
		c.Schedule.BalanceReport = "@every 10m"
	}
	if c.Schedule.Prune == "" {
		c.Schedule.Prune = "@daily"
	}
	if c.Schedule.Retention == 0 {
		c.Schedule.Retention = 90 * 24 * time.Hour
	}
}

func (c *Config) Validate() error {
	if c.Login.Nickname == "" {
		return errors.New("login.nickname is required")
	}
	switch c.Connection.Network {
	case NetworkIRC:
		if c.Connection.Host == "" {
			return errors.New("connection.host is required")
		}
	case NetworkTelegram:
		if c.Telegram.Token == "" {
			return errors.New("telegram.token is required")
		}
	default:
		return fmt.Errorf("unknown connection.network %q", c.Connection.Network)
	}
	if c.RPC.Host == "" || c.RPC.Port == 0 {
		return errors.New("rpc.host and rpc.port are required")
	}
	if !c.Coin.MinTip.IsPositive() {
		return errors.New("coin.min_tip must be positive")
	}
	if c.Coin.WithdrawalFee.IsNegative() {
		return errors.New("coin.withdrawal_fee must not be negative")
	}
	if !c.Coin.MinWithdraw.GreaterThan(c.Coin.WithdrawalFee) {
		return errors.New("coin.min_withdraw must be greater than coin.withdrawal_fee")
	}
	if c.Coin.MinConfirmations < 0 {
		return errors.New("coin.min_confirmations must not be negative")
	}
	if c.WebAdmin.Enabled && (c.WebAdmin.User == "" || c.WebAdmin.PasswordHash == "") {
		return errors.New("webadmin.user and webadmin.password_hash are required when webadmin is enabled")
	}
	return nil
}
