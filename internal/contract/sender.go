package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// WriteHandle sends write transactions to the contract on behalf of a
// signer. It embeds a ReadHandle on the same endpoint.
type WriteHandle struct {
	ReadHandle
	signer Signer
}

// From returns the signing account.
func (h *WriteHandle) From() common.Address { return h.signer.Address() }

// PendingTx is a broadcast transaction that has not been confirmed yet.
type PendingTx struct {
	Hash   string
	From   common.Address
	Method string
	Nonce  uint64
	Value  *big.Int

	msg chain.CallMsg
}

// Receipt is a confirmed, successful transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	From        string
}

// Submit encodes, signs and broadcasts a call to a write function. value is
// attached as wei (nil for none). The broadcast is attempted exactly once.
// A revert detected during gas estimation returns a *RevertError and nothing
// is sent.
func (h *WriteHandle) Submit(ctx context.Context, method string, value *big.Int, args ...interface{}) (*PendingTx, error) {
	m, err := h.gw.method(method)
	if err != nil {
		return nil, err
	}
	if m.IsConstant() {
		return nil, fmt.Errorf("%w: %q", ErrNotWriteMethod, method)
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && !m.IsPayable() {
		return nil, fmt.Errorf("%s is not payable", method)
	}

	input, err := h.gw.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}

	from := h.signer.Address()
	msg := chain.CallMsg{
		From:  from.Hex(),
		To:    h.gw.address.Hex(),
		Data:  hexutil.Encode(input),
		Value: value,
	}

	chainID := h.gw.chainID
	if chainID == nil {
		if chainID, err = h.client.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("getting chain id: %w", err)
		}
	}

	gas, err := h.client.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, &RevertError{Method: method, Reason: reason}
		}
		h.gw.log.Warn().Err(err).Str("method", method).Uint64("gas", h.gw.gasFallback).Msg("gas estimation failed, using fallback")
		gas = h.gw.gasFallback
	}

	gasPrice, err := h.client.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas price: %w", err)
	}

	nonce, err := h.client.GetPendingNonce(ctx, from.Hex())
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	to := h.gw.address
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      input,
	})

	signed, err := h.signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling signed tx: %w", err)
	}

	localHash := signed.Hash().Hex()
	hash, err := h.client.SendRawTransaction(ctx, hexutil.Encode(raw))
	if err != nil {
		var rpcErr *chain.RPCError
		return nil, &BroadcastError{TxHash: localHash, Rejected: errors.As(err, &rpcErr), Err: err}
	}

	h.gw.log.Info().
		Str("method", method).
		Str("from", from.Hex()).
		Str("hash", hash).
		Uint64("nonce", nonce).
		Msg("transaction submitted")

	return &PendingTx{
		Hash:   hash,
		From:   from,
		Method: method,
		Nonce:  nonce,
		Value:  value,
		msg:    msg,
	}, nil
}

// Preview runs a write function as an eth_call from the signer and returns
// its decoded outputs without sending anything.
func (h *WriteHandle) Preview(ctx context.Context, method string, value *big.Int, args ...interface{}) ([]interface{}, error) {
	m, err := h.gw.method(method)
	if err != nil {
		return nil, err
	}
	return h.call(ctx, h.signer.Address().Hex(), m, value, args...)
}

// AwaitConfirmation blocks until p is mined, the gateway's bounds run out,
// or ctx ends. Cancelling ctx only stops waiting.
func (h *WriteHandle) AwaitConfirmation(ctx context.Context, p *PendingTx) (*Receipt, error) {
	return h.await(ctx, p.Hash, p.Method, &p.msg)
}

// AwaitHash re-attaches to a transaction known only by hash, for example one
// that timed out in an earlier run. Revert reasons cannot be recovered for it.
// No signer is needed, so it is available on read handles.
func (h *ReadHandle) AwaitHash(ctx context.Context, hash, method string) (*Receipt, error) {
	return h.await(ctx, hash, method, nil)
}

func (h *ReadHandle) await(ctx context.Context, hash, method string, msg *chain.CallMsg) (*Receipt, error) {
	r, err := h.client.WaitForReceipt(ctx, hash, chain.WaitOptions{
		Interval:  h.gw.pollInterval,
		Timeout:   h.gw.confirmTimeout,
		MaxBlocks: h.gw.confirmBlocks,
	})
	switch {
	case errors.Is(err, chain.ErrTxReverted):
		reason := ""
		if msg != nil && r != nil {
			reason = h.replayReason(ctx, *msg, r.BlockNumber)
		}
		return nil, &RevertError{Method: method, TxHash: hash, Reason: reason}
	case errors.Is(err, chain.ErrReceiptTimeout):
		return nil, &TimeoutError{TxHash: hash, Err: err}
	case err != nil:
		return nil, err
	}

	h.gw.log.Info().Str("hash", hash).Uint64("block", r.BlockNumber).Msg("transaction confirmed")
	return &Receipt{
		TxHash:      r.Hash,
		BlockNumber: r.BlockNumber,
		GasUsed:     r.GasUsed,
		From:        r.From,
	}, nil
}

// replayReason re-runs a reverted transaction as a call against the block it
// was mined in to recover the revert message.
func (h *ReadHandle) replayReason(ctx context.Context, msg chain.CallMsg, block uint64) string {
	tag := hexutil.EncodeUint64(block)
	_, err := h.client.CallContract(ctx, msg, tag)
	if err == nil {
		return ""
	}
	if reason, ok := revertReason(err); ok {
		return reason
	}
	return ""
}

// CreateCampaign submits createCampaign(owner, title, description, target, deadline).
// target is in wei and deadline in seconds since the epoch.
func (h *WriteHandle) CreateCampaign(ctx context.Context, owner common.Address, title, description string, target, deadline *big.Int) (*PendingTx, error) {
	return h.Submit(ctx, MethodCreateCampaign, nil, owner, title, description, target, deadline)
}

// PreviewCreateCampaign returns the id createCampaign would assign right now.
func (h *WriteHandle) PreviewCreateCampaign(ctx context.Context, owner common.Address, title, description string, target, deadline *big.Int) (*big.Int, error) {
	out, err := h.Preview(ctx, MethodCreateCampaign, nil, owner, title, description, target, deadline)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// DonateToCampaign submits donateToCampaign(id) with value wei attached.
func (h *WriteHandle) DonateToCampaign(ctx context.Context, id, value *big.Int) (*PendingTx, error) {
	return h.Submit(ctx, MethodDonateToCampaign, value, id)
}
