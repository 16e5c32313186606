package bot

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// invocation is one accepted command.
type invocation struct {
	id      string
	from    string
	account string
	reply   string
	command string
	args    string
	log     zerolog.Logger
}

// HandleMessage routes a chat message. Commands that pass the channel and
// private-message rules run on their own goroutine once the sender's
// identity is confirmed; everything else is ignored.
func (bot *Bot) HandleMessage(ctx context.Context, from, target, text string) {
	m := bot.command.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return
	}
	prefix, name, args := m[1], m[2], strings.TrimSpace(m[3])

	cmd, ok := bot.Config.Commands[name]
	if !ok || !cmd.IsEnabled() {
		return
	}
	handler, ok := bot.handlers[name]
	if !ok {
		log.Debug().Str("command", name).Msg("Configured command has no handler")
		return
	}

	reply := target
	if strings.EqualFold(target, bot.Transport.Nick()) {
		if !cmd.PMEnabled() {
			return
		}
		reply = from
	} else if !cmd.ChannelEnabled() || prefix == "" {
		return
	}

	inv := &invocation{
		id:      uuid.NewString(),
		from:    from,
		account: strings.ToLower(from),
		reply:   reply,
		command: name,
		args:    args,
	}
	inv.log = log.With().
		Str("invocation", inv.id).
		Str("from", from).
		Str("command", name).
		Logger()

	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		bot.run(ctx, inv, handler)
	}()
}

func (bot *Bot) run(ctx context.Context, inv *invocation, handler handlerFunc) {
	if bot.Config.SerializePerIdentity {
		unlock := bot.locks.lock(inv.account)
		defer unlock()
	}

	level, err := bot.Verifier.Verify(ctx, inv.from)
	if err != nil {
		if ctx.Err() != nil {
			inv.log.Debug().Err(err).Msg("Verification abandoned")
			return
		}
		inv.log.Warn().Err(err).Msg("Could not verify identity")
		bot.say(inv, "not_identified", map[string]any{"name": inv.from})
		return
	}
	if level != bot.Config.Auth.Level {
		inv.log.Info().Int("level", level).Str("args", inv.args).Msg("Command from unidentified user")
		bot.say(inv, "not_identified", map[string]any{"name": inv.from})
		return
	}

	handler(ctx, inv)
}

// say sends every line of the named message to the invocation's reply
// target.
func (bot *Bot) say(inv *invocation, name string, values map[string]any) {
	lines, ok := bot.Config.Messages[name]
	if !ok {
		inv.log.Error().Str("template", name).Msg("Missing message template")
		return
	}
	for _, line := range bot.Format.Lines(lines, values) {
		if err := bot.Transport.Send(inv.reply, line); err != nil {
			inv.log.Error().Err(err).Str("target", inv.reply).Msg("Failed to send message")
			return
		}
	}
}

// fail reports a wallet failure to the user and logs the detail.
func (bot *Bot) fail(inv *invocation, step string, err error) {
	inv.log.Error().Err(err).Str("step", step).Msg("Wallet call failed")
	bot.say(inv, "error", map[string]any{"name": inv.from})
}
