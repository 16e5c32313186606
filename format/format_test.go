package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderPrecedence(t *testing.T) {
	coin := map[string]any{"short_name": "DOGE", "name": "coin"}
	global := map[string]any{"nick": "tipbot", "name": "global"}

	got := Render("%name% got %amount%%short_name% from %nick%", map[string]any{"name": "alice", "amount": 10}, coin, global)
	assert.Equal(t, "alice got 10DOGE from tipbot", got)

	got = Render("%name%", nil, coin, global)
	assert.Equal(t, "coin", got)

	got = Render("%name%", nil, nil, global)
	assert.Equal(t, "global", got)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	got := Render("hello %who%, 100% sure %a-b%", map[string]any{"x": 1})
	assert.Equal(t, "hello %who%, 100% sure %a-b%", got)
}

func TestRenderIsDeterministic(t *testing.T) {
	values := map[string]any{"balance": decimal.RequireFromString("12.5"), "name": "bob"}
	first := Render("%name% has %balance% (%missing%)", values)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render("%name% has %balance% (%missing%)", values))
	}
	assert.Equal(t, "bob has 12.5 (%missing%)", first)
}

func TestFormatterLines(t *testing.T) {
	f := &Formatter{
		Coin:   map[string]any{"full_name": "Dogecoin"},
		Global: func() map[string]any { return map[string]any{"nick": "tipbot"} },
	}
	lines := f.Lines([]string{"%nick% tips %full_name%", "use !help"}, nil)
	assert.Equal(t, []string{"tipbot tips Dogecoin", "use !help"}, lines)

	assert.Equal(t, "override", f.Render("%nick%", map[string]any{"nick": "override"}))
}
