package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Signer authorizes transactions for one account.
type Signer interface {
	// Address returns the signing account, or the zero address when none is
	// connected.
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Gateway binds the CrowdFunding ABI to a deployed address. It is cheap and
// holds no connection state; handles are created per endpoint.
type Gateway struct {
	abi     abi.ABI
	address common.Address
	chainID *big.Int

	clientOpts     []chain.Option
	confirmTimeout time.Duration
	confirmBlocks  uint64
	pollInterval   time.Duration
	gasFallback    uint64
	log            zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithChainID pins the chain ID used for signing. Without it the node is
// asked on every submission.
func WithChainID(id *big.Int) Option {
	return func(g *Gateway) { g.chainID = id }
}

// WithClientOptions passes options to every JSON-RPC client the gateway opens.
func WithClientOptions(opts ...chain.Option) Option {
	return func(g *Gateway) { g.clientOpts = append(g.clientOpts, opts...) }
}

// WithConfirmation bounds AwaitConfirmation by wall-clock time and by blocks
// mined after submission. Zero leaves a bound unset.
func WithConfirmation(timeout time.Duration, blocks uint64) Option {
	return func(g *Gateway) {
		g.confirmTimeout = timeout
		g.confirmBlocks = blocks
	}
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) { g.pollInterval = d }
}

// WithGasFallback sets the gas limit used when the node cannot estimate.
func WithGasFallback(gas uint64) Option {
	return func(g *Gateway) { g.gasFallback = gas }
}

// WithLogger sets the gateway logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway creates a Gateway for the contract at address.
func NewGateway(address string, opts ...Option) (*Gateway, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := CrowdFundingABI()
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		abi:            parsed,
		address:        common.HexToAddress(address),
		confirmTimeout: 3 * time.Minute,
		pollInterval:   2 * time.Second,
		gasFallback:    200_000,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	// The timeout is what keeps a stalled node from hanging callers forever.
	if g.confirmTimeout <= 0 && g.confirmBlocks == 0 {
		g.confirmTimeout = 3 * time.Minute
	}
	return g, nil
}

// Address returns the contract address.
func (g *Gateway) Address() common.Address { return g.address }

// ForReading opens a read-only handle on endpoint. It never needs a wallet.
func (g *Gateway) ForReading(endpoint string) *ReadHandle {
	return &ReadHandle{gw: g, client: g.newClient(endpoint)}
}

// ForWriting opens a handle that submits transactions signed by signer.
func (g *Gateway) ForWriting(endpoint string, signer Signer) (*WriteHandle, error) {
	if signer == nil || signer.Address() == (common.Address{}) {
		return nil, ErrNoSignerAvailable
	}
	client := g.newClient(endpoint)
	return &WriteHandle{
		ReadHandle: ReadHandle{gw: g, client: client},
		signer:     signer,
	}, nil
}

func (g *Gateway) newClient(endpoint string) *chain.EVMClient {
	opts := append([]chain.Option{chain.WithLogger(g.log)}, g.clientOpts...)
	return chain.NewEVMClient(endpoint, opts...)
}

func (g *Gateway) method(name string) (abi.Method, error) {
	m, ok := g.abi.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// revertReason extracts the contract's message from a failed call. It prefers
// the ABI-encoded Error(string) payload and falls back to the node's text.
func revertReason(err error) (string, bool) {
	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) || !rpcErr.IsRevert() {
		return "", false
	}
	if data := rpcErr.DataHex(); data != "" {
		if reason, uerr := abi.UnpackRevert(common.FromHex(data)); uerr == nil {
			return reason, true
		}
	}
	return chain.RevertReason(rpcErr.Message), true
}
