package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"coin-tip-bot/verify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
connection:
  host: irc.example.net
  secure: true
login:
  nickname: tipbot
  nickserv_password: secret
channels: ["#doge"]
rpc:
  host: 127.0.0.1
  port: 22555
  user: rpcuser
  pass: rpcpass
coin:
  full_name: Dogecoin
  short_name: DOGE
  min_tip: 5
  min_withdraw: 10
  withdrawal_fee: 1.5
  min_confirmations: 5
auth:
  timeout: 5s
commands:
  tip:
    pm: false
  balance: {}
  withdraw:
    channel: false
  terms:
    enabled: false
messages:
  tipped: "%from% -> %to%: %amount%"
  help:
    - line one
    - line two
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, NetworkIRC, cfg.Connection.Network)
	assert.Equal(t, 6697, cfg.Connection.Port)
	assert.Equal(t, "ACC", cfg.Connection.StatusCommand)
	assert.Equal(t, "NickServ", cfg.Connection.Authority)
	assert.Equal(t, "tipbot", cfg.Login.Username)
	assert.Equal(t, verify.FullyAuthorized, cfg.Auth.Level)
	assert.Equal(t, 5*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, "!", cfg.Prefix)
	assert.True(t, cfg.SerializePerIdentity)

	assert.True(t, cfg.Coin.WithdrawalFee.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, cfg.Coin.MinTip.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 5, cfg.Coin.MinConfirmations)

	assert.True(t, cfg.Commands["tip"].ChannelEnabled())
	assert.False(t, cfg.Commands["tip"].PMEnabled())
	assert.True(t, cfg.Commands["balance"].PMEnabled())
	assert.False(t, cfg.Commands["withdraw"].ChannelEnabled())
	assert.False(t, cfg.Commands["terms"].PMEnabled())
	assert.False(t, cfg.Commands["terms"].ChannelEnabled())
	_, ok := cfg.Commands["address"]
	assert.False(t, ok, "explicit command list replaces the defaults")

	assert.Equal(t, Message{"%from% -> %to%: %amount%"}, cfg.Messages["tipped"])
	assert.Equal(t, Message{"line one", "line two"}, cfg.Messages["help"])
	assert.Equal(t, defaultMessages["no_funds"], cfg.Messages["no_funds"])
}

func TestEnvironmentOverridesSecrets(t *testing.T) {
	t.Setenv("RPC_PASS", "from-env")
	t.Setenv("NICKSERV_PASSWORD", "env-secret")
	t.Setenv("WEBADMIN_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.RPC.Pass)
	assert.Equal(t, "rpcuser", cfg.RPC.User)
	assert.Equal(t, "env-secret", cfg.Login.NickServPassword)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebAdmin.AllowedOrigins)
}

func TestDefaultCommands(t *testing.T) {
	cfg, err := Parse([]byte(`
login: {nickname: tipbot}
connection: {network: telegram}
telegram: {token: "123:abc"}
rpc: {host: localhost, port: 22555}
coin: {min_tip: 1, min_withdraw: 2, withdrawal_fee: 1}
`))
	require.NoError(t, err)
	for _, name := range []string{"tip", "balance", "address", "withdraw", "help", "terms"} {
		cmd, ok := cfg.Commands[name]
		require.True(t, ok, name)
		assert.True(t, cmd.ChannelEnabled())
		assert.True(t, cmd.PMEnabled())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"nickname":  `{connection: {host: h}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2}}`,
		"host":      `{login: {nickname: n}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2}}`,
		"network":   `{login: {nickname: n}, connection: {network: xmpp}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2}}`,
		"token":     `{login: {nickname: n}, connection: {network: telegram}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2}}`,
		"rpc":       `{login: {nickname: n}, connection: {host: h}, coin: {min_tip: 1, min_withdraw: 2}}`,
		"min_tip":   `{login: {nickname: n}, connection: {host: h}, rpc: {host: h, port: 1}, coin: {min_tip: 0, min_withdraw: 2}}`,
		"fee":       `{login: {nickname: n}, connection: {host: h}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2, withdrawal_fee: 2}}`,
		"webadmin":  `{login: {nickname: n}, connection: {host: h}, rpc: {host: h, port: 1}, coin: {min_tip: 1, min_withdraw: 2}, webadmin: {enabled: true}}`,
		"bad shape": `{login: {nickname: n}, messages: {help: {a: b}}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.example.net", cfg.Connection.Host)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load("config.example.yml")
	require.NoError(t, err)

	assert.Equal(t, 6697, cfg.Connection.Port)
	assert.False(t, cfg.Commands["withdraw"].ChannelEnabled())
	assert.True(t, cfg.Commands["withdraw"].PMEnabled())
	assert.Len(t, cfg.Messages["help"], 2)
	assert.NotEmpty(t, cfg.Messages["not_identified"])
}

func TestSerializePerIdentity(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.True(t, cfg.SerializePerIdentity)

	cfg, err = Parse([]byte(sample + "\nserialize_per_identity: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.SerializePerIdentity)

	cfg, err = Parse([]byte(sample + "\nserialize_per_identity: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.SerializePerIdentity)

	t.Setenv("SERIALIZE_PER_IDENTITY", "false")
	cfg, err = Parse([]byte(sample))
	require.NoError(t, err)
	assert.False(t, cfg.SerializePerIdentity)
}
