package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Errors returned by the client.
var (
	ErrTxReverted     = errors.New("transaction reverted")
	ErrReceiptTimeout = errors.New("transaction not mined in time")
)

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url     string
	client  *http.Client
	retries uint
	backoff func() backoff.BackOff
	log     zerolog.Logger
	nextID  atomic.Int64
}

// Option configures an EVMClient.
type Option func(*EVMClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *EVMClient) { c.client = hc }
}

// WithRetries sets how many attempts a read call gets on transient transport
// failures. 1 disables retrying.
func WithRetries(n uint) Option {
	return func(c *EVMClient) {
		if n == 0 {
			n = 1
		}
		c.retries = n
	}
}

// WithBackOff sets the retry schedule for read calls.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *EVMClient) { c.backoff = fn }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *EVMClient) { c.log = l }
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string, opts ...Option) *EVMClient {
	c := &EVMClient{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		retries: 3,
		backoff: defaultBackOff,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client talks to.
func (c *EVMClient) URL() string { return c.url }

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// CallMsg describes an eth_call / eth_estimateGas request.
type CallMsg struct {
	From  string
	To    string
	Data  string // 0x-prefixed calldata
	Value *big.Int
}

func (m CallMsg) params() map[string]string {
	p := map[string]string{"to": m.To}
	if m.From != "" {
		p["from"] = m.From
	}
	if m.Data != "" {
		p["data"] = m.Data
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		p["value"] = "0x" + m.Value.Text(16)
	}
	return p
}

// GetBlockNumber returns the latest block number.
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "block number", "eth_blockNumber")
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "chain id", "eth_chainId")
}

// GasPrice returns the current gas price.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "gas price", "eth_gasPrice")
}

// GetNonce returns the transaction count (nonce) for an address.
func (c *EVMClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	return c.callUint64(ctx, "nonce", "eth_getTransactionCount", address, "latest")
}

// GetPendingNonce returns the transaction count including pending (queued)
// transactions, using the "pending" block tag.
func (c *EVMClient) GetPendingNonce(ctx context.Context, address string) (uint64, error) {
	return c.callUint64(ctx, "pending nonce", "eth_getTransactionCount", address, "pending")
}

// EstimateGas estimates gas for a transaction.
func (c *EVMClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	return c.callUint64(ctx, "gas estimate", "eth_estimateGas", msg.params())
}

// CallContract runs eth_call at block ("latest" when empty) and returns the
// raw hex result.
func (c *EVMClient) CallContract(ctx context.Context, msg CallMsg, block string) (string, error) {
	if block == "" {
		block = "latest"
	}
	return c.callString(ctx, "eth_call", msg.params(), block)
}

// SendRawTransaction broadcasts a signed raw transaction. It is never retried.
func (c *EVMClient) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	return c.callString(ctx, "eth_sendRawTransaction", rawTx)
}

// TxReceipt holds the on-chain receipt of a mined transaction.
type TxReceipt struct {
	Hash            string
	Status          uint64 // 1 = success, 0 = reverted
	BlockNumber     uint64
	GasUsed         uint64
	From            string
	To              string
	ContractAddress string
}

// GetTransactionReceipt fetches the receipt for hash.
// Returns nil, nil if the transaction is still pending.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash string) (*TxReceipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil // still pending
	}

	var r struct {
		Status          string `json:"status"`
		BlockNumber     string `json:"blockNumber"`
		GasUsed         string `json:"gasUsed"`
		From            string `json:"from"`
		To              string `json:"to"`
		ContractAddress string `json:"contractAddress"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}

	receipt := &TxReceipt{Hash: hash, From: r.From, To: r.To, ContractAddress: r.ContractAddress}
	if s, ok := parseBigHex(r.Status); ok {
		receipt.Status = s.Uint64()
	}
	if bn, ok := parseBigHex(r.BlockNumber); ok {
		receipt.BlockNumber = bn.Uint64()
	}
	if gu, ok := parseBigHex(r.GasUsed); ok {
		receipt.GasUsed = gu.Uint64()
	}
	return receipt, nil
}

// WaitOptions bounds WaitForReceipt.
type WaitOptions struct {
	Interval  time.Duration // poll interval, default 2s
	Timeout   time.Duration // wall-clock bound, 0 = none
	MaxBlocks uint64        // blocks past submission before giving up, 0 = none
}

// WaitForReceipt polls until the transaction is mined or one of the bounds in
// opts is exceeded. A reverted receipt is returned together with an error
// wrapping ErrTxReverted. Cancelling ctx stops waiting; it does not affect the
// transaction.
func (c *EVMClient) WaitForReceipt(ctx context.Context, hash string, opts WaitOptions) (*TxReceipt, error) {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var startBlock uint64
	if opts.MaxBlocks > 0 {
		n, err := c.GetBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		startBlock = n
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		receipt, err := c.GetTransactionReceipt(ctx, hash)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if receipt != nil {
			if receipt.Status == 0 {
				return receipt, fmt.Errorf("%w (hash: %s)", ErrTxReverted, hash)
			}
			return receipt, nil
		}

		if opts.MaxBlocks > 0 && ctx.Err() == nil {
			if n, err := c.GetBlockNumber(ctx); err == nil && n >= startBlock+opts.MaxBlocks {
				return nil, fmt.Errorf("%w: %s still pending after %d blocks", ErrReceiptTimeout, hash, opts.MaxBlocks)
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s not mined within %s", ErrReceiptTimeout, hash, opts.Timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SimulateCall simulates a contract call using eth_call (with from field).
// Returns (true, returnData, nil) on success or (false, revertReason, nil) if
// the call reverts. Network errors return (false, "", err).
func (c *EVMClient) SimulateCall(ctx context.Context, msg CallMsg, block string) (bool, string, error) {
	result, err := c.CallContract(ctx, msg, block)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.IsRevert() {
			return false, RevertReason(rpcErr.Message), nil
		}
		return false, "", err
	}
	return true, result, nil
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.GetBlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// RevertReason tries to pull the revert reason out of an RPC error message.
func RevertReason(errMsg string) string {
	// Common pattern: "execution reverted: <reason>"
	if idx := strings.Index(errMsg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(errMsg[idx+len("execution reverted:"):])
	}
	// Hardhat: "... reverted with reason string 'reason'"
	const hh = "reverted with reason string '"
	if idx := strings.Index(errMsg, hh); idx >= 0 {
		rest := errMsg[idx+len(hh):]
		if end := strings.LastIndex(rest, "'"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if idx := strings.Index(errMsg, "revert"); idx >= 0 {
		return strings.TrimSpace(errMsg[idx:])
	}
	return errMsg
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether the node rejected the call during execution.
func (e *RPCError) IsRevert() bool {
	msg := strings.ToLower(e.Message)
	return e.Code == 3 || strings.Contains(msg, "revert") || strings.Contains(msg, "execution")
}

// DataHex returns the error's data payload when it is a hex string.
func (e *RPCError) DataHex() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil && strings.HasPrefix(s, "0x") {
		return s
	}
	// Some nodes nest it: {"data": {"data": "0x..."}}
	var nested struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(e.Data, &nested); err == nil && strings.HasPrefix(nested.Data, "0x") {
		return nested.Data
	}
	return ""
}

// transportError marks failures that happened before a JSON-RPC response
// was obtained. Those are the only ones worth retrying.
type transportError struct {
	status int
	err    error
}

func (e *transportError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("RPC request failed: HTTP %d: %v", e.status, e.err)
	}
	return fmt.Sprintf("RPC request failed: %v", e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) transient() bool {
	return e.status == 0 || e.status == http.StatusTooManyRequests || e.status >= 500
}

// mutating lists methods that must reach the node at most once.
var mutating = map[string]bool{
	"eth_sendRawTransaction": true,
	"eth_sendTransaction":    true,
}

func (c *EVMClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if c.retries <= 1 || mutating[method] {
		return c.do(ctx, method, params...)
	}

	attempt := 0
	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		attempt++
		res, err := c.do(ctx, method, params...)
		if err == nil {
			return res, nil
		}
		var te *transportError
		if !errors.As(err, &te) || !te.transient() || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		c.log.Debug().Err(err).Str("method", method).Int("attempt", attempt).Msg("retrying read call")
		return nil, err
	}, backoff.WithBackOff(c.backoff()), backoff.WithMaxTries(c.retries))
}

func (c *EVMClient) do(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("method", method).Str("url", c.url).Msg("rpc call")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK && len(bytes.TrimSpace(body)) == 0 {
		return nil, &transportError{status: resp.StatusCode, err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &transportError{status: resp.StatusCode, err: err}
		}
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *EVMClient) callString(ctx context.Context, method string, params ...interface{}) (string, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected %s result: %s", method, string(raw))
	}
	return s, nil
}

func (c *EVMClient) callBig(ctx context.Context, what, method string, params ...interface{}) (*big.Int, error) {
	hexStr, err := c.callString(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	n, ok := parseBigHex(hexStr)
	if !ok {
		return nil, fmt.Errorf("could not parse %s: %s", what, hexStr)
	}
	return n, nil
}

func (c *EVMClient) callUint64(ctx context.Context, what, method string, params ...interface{}) (uint64, error) {
	n, err := c.callBig(ctx, what, method, params...)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func parseBigHex(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 16)
}
