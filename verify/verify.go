// Package verify asks an authority service (NickServ) for a user's
// identification level and matches its replies to pending requests.
package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FullyAuthorized is the level NickServ reports for an identified user.
const FullyAuthorized = 3

var (
	ErrPending = errors.New("verification already pending")
	ErrTimeout = errors.New("verification timed out")
)

// Sender delivers a chat message.
type Sender interface {
	Send(target, text string) error
}

type Options struct {
	Authority     string
	StatusCommand string
	Timeout       time.Duration
}

type request struct {
	result chan int
}

type Verifier struct {
	sender  Sender
	opts    Options
	pattern *regexp.Regexp

	mu      sync.Mutex
	pending map[string]*request
}

func New(sender Sender, opts Options) *Verifier {
	if opts.Authority == "" {
		opts.Authority = "NickServ"
	}
	if opts.StatusCommand == "" {
		opts.StatusCommand = "ACC"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Verifier{
		sender:  sender,
		opts:    opts,
		pattern: regexp.MustCompile(`^(\S+) ` + regexp.QuoteMeta(opts.StatusCommand) + ` (\d)`),
		pending: make(map[string]*request),
	}
}

// Verify sends the status challenge for identity and waits for the
// authority's answer. Only one request per identity may be outstanding.
func (v *Verifier) Verify(ctx context.Context, identity string) (int, error) {
	key := strings.ToLower(identity)
	req := &request{result: make(chan int, 1)}

	v.mu.Lock()
	if _, ok := v.pending[key]; ok {
		v.mu.Unlock()
		return 0, ErrPending
	}
	v.pending[key] = req
	v.mu.Unlock()

	defer v.remove(key, req)

	if err := v.sender.Send(v.opts.Authority, v.opts.StatusCommand+" "+identity); err != nil {
		return 0, fmt.Errorf("send status request: %w", err)
	}

	timer := time.NewTimer(v.opts.Timeout)
	defer timer.Stop()

	select {
	case level := <-req.result:
		return level, nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// HandleNotice feeds a notice from the network. It reports whether the
// notice answered a pending request.
func (v *Verifier) HandleNotice(from, text string) bool {
	if !strings.EqualFold(from, v.opts.Authority) {
		return false
	}
	m := v.pattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	level, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}

	key := strings.ToLower(m[1])
	v.mu.Lock()
	req, ok := v.pending[key]
	if ok {
		delete(v.pending, key)
	}
	v.mu.Unlock()
	if !ok {
		log.Debug().Str("identity", m[1]).Msg("Status reply without pending request")
		return false
	}

	req.result <- level
	return true
}

// Pending returns the number of outstanding requests.
func (v *Verifier) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

func (v *Verifier) remove(key string, req *request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending[key] == req {
		delete(v.pending, key)
	}
}
