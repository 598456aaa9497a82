package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ReadHandle calls read-only (view/pure) contract functions.
type ReadHandle struct {
	gw     *Gateway
	client *chain.EVMClient
}

// Client exposes the underlying JSON-RPC client.
func (h *ReadHandle) Client() *chain.EVMClient { return h.client }

// Endpoint returns the node URL the handle talks to.
func (h *ReadHandle) Endpoint() string { return h.client.URL() }

// Call invokes a read function and returns its decoded outputs.
func (h *ReadHandle) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	m, err := h.gw.method(method)
	if err != nil {
		return nil, err
	}
	if !m.IsConstant() {
		return nil, fmt.Errorf("%w: %q (stateMutability: %s)", ErrNotReadMethod, method, m.StateMutability)
	}
	return h.call(ctx, "", m, nil, args...)
}

func (h *ReadHandle) call(ctx context.Context, from string, m abi.Method, value *big.Int, args ...interface{}) ([]interface{}, error) {
	input, err := h.gw.abi.Pack(m.Name, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Name, err)
	}

	result, err := h.client.CallContract(ctx, chain.CallMsg{
		From:  from,
		To:    h.gw.address.Hex(),
		Data:  hexutil.Encode(input),
		Value: value,
	}, "latest")
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, &RevertError{Method: m.Name, Reason: reason}
		}
		return nil, fmt.Errorf("contract call %s failed: %w", m.Name, err)
	}

	data := common.FromHex(result)
	if len(data) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("%w from %s: no contract at %s?", ErrNoContractCode, m.Name, h.gw.address.Hex())
	}

	out, err := m.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", m.Name, err)
	}
	return out, nil
}

// GetCampaigns returns every campaign in storage order.
func (h *ReadHandle) GetCampaigns(ctx context.Context) ([]RawCampaign, error) {
	out, err := h.Call(ctx, MethodGetCampaigns)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("decoding %s result: expected 1 value, got %d", MethodGetCampaigns, len(out))
	}
	campaigns := *abi.ConvertType(out[0], new([]RawCampaign)).(*[]RawCampaign)
	return campaigns, nil
}

// GetDonators returns the parallel donor and amount arrays of campaign id.
// Lengths are returned as the chain sent them and are not reconciled here.
func (h *ReadHandle) GetDonators(ctx context.Context, id *big.Int) ([]common.Address, []*big.Int, error) {
	out, err := h.Call(ctx, MethodGetDonators, id)
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("decoding %s result: expected 2 values, got %d", MethodGetDonators, len(out))
	}
	donors, ok := out[0].([]common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("decoding %s result: unexpected donors type %T", MethodGetDonators, out[0])
	}
	amounts, ok := out[1].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("decoding %s result: unexpected amounts type %T", MethodGetDonators, out[1])
	}
	return donors, amounts, nil
}

// NumberOfCampaigns returns the contract's campaign counter.
func (h *ReadHandle) NumberOfCampaigns(ctx context.Context) (*big.Int, error) {
	out, err := h.Call(ctx, MethodNumberOfCampaigns)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding %s result: unexpected type %T", MethodNumberOfCampaigns, out[0])
	}
	return n, nil
}
