// Package wallet talks JSON-RPC to a bitcoin-family wallet daemon using its
// account API.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultConfirmations is what the daemon assumes when getbalance is called
// without a confirmation count.
const DefaultConfirmations = 1

type Options struct {
	Host    string
	Port    int
	User    string
	Pass    string
	Secure  bool
	Timeout time.Duration
}

type Client struct {
	HTTPClient *http.Client
	URL        string
	user, pass string
	nextID     atomic.Uint64
}

func NewClient(opts Options) *Client {
	scheme := "http"
	if opts.Secure {
		scheme = "https"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        scheme + "://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		user:       opts.User,
		pass:       opts.Pass,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *RPCError           `json:"error"`
	ID     uint64              `json:"id"`
}

// RPCError is an error reported by the daemon itself.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method and decodes its result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := codec.Marshal(request{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	// The daemon answers RPC errors with a 500 and a regular envelope, so
	// only give up on the status when the body is not one.
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%s: http status %d with empty body", method, resp.StatusCode)
	}
	var rpcResp response
	if err := codec.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: http status %d", method, resp.StatusCode)
		}
		return fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := codec.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// amount keeps the decimal exact on the wire while still encoding as a JSON
// number, which the daemon requires.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
