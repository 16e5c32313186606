package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"coin-tip-bot/config"
	"coin-tip-bot/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testConfig = `
login: {nickname: tipbot}
connection: {host: irc.example.net}
rpc: {host: localhost, port: 22555}
coin:
  full_name: Dogecoin
  short_name: DOGE
  min_tip: 5
  min_withdraw: 10
  withdrawal_fee: 1
  min_confirmations: 5
auth: {timeout: 1s}
`

type sent struct {
	target, text string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sent
}

func (t *fakeTransport) Nick() string { return "tipbot" }

func (t *fakeTransport) Send(target, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{target, text})
	return nil
}

func (t *fakeTransport) messages() []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sent(nil), t.sent...)
}

type moveCall struct {
	from, to string
	amount   string
}

type sendCall struct {
	from, address string
	amount        string
}

var errWallet = errors.New("wallet unreachable")

type fakeWallet struct {
	mu sync.Mutex

	confirmed map[string]decimal.Decimal
	pending   map[string]decimal.Decimal
	addresses map[string]string
	valid     map[string]bool

	balanceErr  error
	pendingErr  error
	moveErr     error
	moveRefused bool

	calls []string
	moves []moveCall
	sends []sendCall
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		confirmed: map[string]decimal.Decimal{},
		pending:   map[string]decimal.Decimal{},
		addresses: map[string]string{},
		valid:     map[string]bool{},
	}
}

func (w *fakeWallet) callLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func (w *fakeWallet) GetBalance(_ context.Context, account string, minConf int) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, fmt.Sprintf("getbalance %s %d", account, minConf))
	if w.balanceErr != nil {
		return decimal.Zero, w.balanceErr
	}
	if minConf == 0 {
		if w.pendingErr != nil {
			return decimal.Zero, w.pendingErr
		}
		return w.confirmed[account].Add(w.pending[account]), nil
	}
	return w.confirmed[account], nil
}

func (w *fakeWallet) TotalBalance(context.Context) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "getbalance")
	total := decimal.Zero
	for _, b := range w.confirmed {
		total = total.Add(b)
	}
	return total, w.balanceErr
}

func (w *fakeWallet) GetAccountAddress(_ context.Context, account string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "getaccountaddress "+account)
	if _, ok := w.addresses[account]; !ok {
		w.addresses[account] = "D" + strings.ToUpper(account) + "addr"
	}
	return w.addresses[account], nil
}

func (w *fakeWallet) ValidateAddress(_ context.Context, address string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "validateaddress "+address)
	return w.valid[address], nil
}

func (w *fakeWallet) Move(_ context.Context, from, to string, amount decimal.Decimal) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "move "+from+" "+to)
	if w.moveErr != nil {
		return false, w.moveErr
	}
	if w.moveRefused {
		return false, nil
	}
	w.moves = append(w.moves, moveCall{from, to, amount.String()})
	w.confirmed[from] = w.confirmed[from].Sub(amount)
	w.confirmed[to] = w.confirmed[to].Add(amount)
	return true, nil
}

func (w *fakeWallet) SendFrom(_ context.Context, from, address string, amount decimal.Decimal) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "sendfrom "+from+" "+address)
	w.sends = append(w.sends, sendCall{from, address, amount.String()})
	w.confirmed[from] = w.confirmed[from].Sub(amount)
	return "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b", nil
}

// fakeVerifier answers from a fixed table. Identities marked silent never
// get a reply; their Verify only returns when the context ends.
type fakeVerifier struct {
	mu     sync.Mutex
	levels map[string]int
	silent map[string]bool
	err    error
	gate   chan struct{}

	calls     []string
	active    int
	maxActive int
}

func (v *fakeVerifier) Verify(ctx context.Context, identity string) (int, error) {
	v.mu.Lock()
	v.calls = append(v.calls, identity)
	v.active++
	if v.active > v.maxActive {
		v.maxActive = v.active
	}
	silent := v.silent[strings.ToLower(identity)]
	level := v.levels[strings.ToLower(identity)]
	gate, err := v.gate, v.err
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.active--
		v.mu.Unlock()
	}()

	if silent {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if gate != nil {
		<-gate
	}
	return level, err
}

func (v *fakeVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

func (v *fakeVerifier) activeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

type harness struct {
	bot       *Bot
	transport *fakeTransport
	wallet    *fakeWallet
	verifier  *fakeVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	db, err := model.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	h := &harness{
		transport: &fakeTransport{},
		wallet:    newFakeWallet(),
		verifier: &fakeVerifier{
			levels: map[string]int{"alice": 3, "bob": 3, "carol": 3},
			silent: map[string]bool{},
		},
	}
	h.bot = New(cfg, h.transport, h.wallet, h.verifier, db)
	return h
}

// handle delivers a message and waits for the command, including any
// follow-up sweep, to finish.
func (h *harness) handle(from, target, text string) {
	h.bot.HandleMessage(context.Background(), from, target, text)
	h.bot.Wait()
}

func (h *harness) render(name string, values map[string]any) []string {
	return h.bot.Format.Lines(h.bot.Config.Messages[name], values)
}

func (h *harness) expect(target string, lines []string) []sent {
	out := make([]sent, 0, len(lines))
	for _, l := range lines {
		out = append(out, sent{target, l})
	}
	return out
}
