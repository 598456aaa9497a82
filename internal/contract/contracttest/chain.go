// Package contracttest runs an in-memory CrowdFunding contract behind a
// JSON-RPC test node so gateway, repository and writer code can be exercised
// end to end without a real chain.
package contracttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/chain/chaintest"
	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainID is the id the emulated node reports (hardhat's default).
var ChainID = big.NewInt(31337)

// DeadlineReason is the message createCampaign reverts with for a past
// deadline.
const DeadlineReason = "The deadline should be a date in the future."

// Chain is an emulated node with one CrowdFunding contract deployed at
// contract.DefaultAddress.
type Chain struct {
	Node *chaintest.Node

	abi abi.ABI

	mu          sync.Mutex
	now         func() time.Time
	block       uint64
	campaigns   []contract.RawCampaign
	donors      [][]common.Address
	amounts     [][]*big.Int
	nonces      map[common.Address]uint64
	receipts    map[common.Hash]map[string]interface{}
	hold        bool
	mineFailure string
	sent        int
}

// New starts an emulated chain for the duration of the test.
func New(t testing.TB) *Chain {
	t.Helper()
	parsed, err := contract.CrowdFundingABI()
	if err != nil {
		t.Fatalf("parsing ABI: %v", err)
	}
	c := &Chain{
		Node:     chaintest.NewNode(t),
		abi:      parsed,
		now:      time.Now,
		block:    1,
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]map[string]interface{}),
	}
	c.Node.Result("eth_chainId", hexutil.EncodeBig(ChainID))
	c.Node.Result("eth_gasPrice", "0x3b9aca00")
	c.Node.Handle("eth_blockNumber", c.blockNumber)
	c.Node.Handle("eth_getTransactionCount", c.nonce)
	c.Node.Handle("eth_call", c.call)
	c.Node.Handle("eth_estimateGas", c.estimateGas)
	c.Node.Handle("eth_sendRawTransaction", c.sendRaw)
	c.Node.Handle("eth_getTransactionReceipt", c.receipt)
	return c
}

// URL returns the node endpoint.
func (c *Chain) URL() string { return c.Node.URL }

// SetNow fixes the clock used for deadline checks.
func (c *Chain) SetNow(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = func() time.Time { return now }
}

// Seed appends a campaign with raw on-chain values.
func (c *Chain) Seed(rc contract.RawCampaign) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc.Target == nil {
		rc.Target = new(big.Int)
	}
	if rc.Deadline == nil {
		rc.Deadline = new(big.Int)
	}
	if rc.AmountCollected == nil {
		rc.AmountCollected = new(big.Int)
	}
	c.campaigns = append(c.campaigns, rc)
	c.donors = append(c.donors, nil)
	c.amounts = append(c.amounts, nil)
	return len(c.campaigns) - 1
}

// SeedDonations replaces the donor ledger of campaign id. The two slices may
// have different lengths to emulate a broken ABI.
func (c *Chain) SeedDonations(id int, donors []common.Address, amounts []*big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.donors[id] = donors
	c.amounts[id] = amounts
}

// Campaigns returns a copy of the contract's campaigns.
func (c *Chain) Campaigns() []contract.RawCampaign {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]contract.RawCampaign(nil), c.campaigns...)
}

// HoldReceipts keeps accepted transactions pending forever. Every
// eth_blockNumber request then advances the chain by one block.
func (c *Chain) HoldReceipts(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = hold
}

// FailOnMine makes transactions that pass gas estimation revert with reason
// once mined.
func (c *Chain) FailOnMine(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mineFailure = reason
}

// Sent returns how many raw transactions the node accepted.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

type callMsg struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

func (c *Chain) blockNumber([]json.RawMessage) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold {
		c.block++
	}
	return hexutil.EncodeUint64(c.block), nil
}

func (c *Chain) nonce(params []json.RawMessage) (interface{}, error) {
	var addr string
	if err := json.Unmarshal(params[0], &addr); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return hexutil.EncodeUint64(c.nonces[common.HexToAddress(addr)]), nil
}

func (c *Chain) call(params []json.RawMessage) (interface{}, error) {
	var msg callMsg
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	tag := "latest"
	if len(params) > 1 {
		json.Unmarshal(params[1], &tag) //nolint:errcheck
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out, reason, err := c.execute(common.HexToAddress(msg.From), common.FromHex(msg.Data), decodeValue(msg.Value), false)
	if err != nil {
		return nil, err
	}
	if reason == "" && tag != "latest" && c.mineFailure != "" {
		reason = c.mineFailure
	}
	if reason != "" {
		return nil, revert(reason)
	}
	return hexutil.Encode(out), nil
}

func (c *Chain) estimateGas(params []json.RawMessage) (interface{}, error) {
	var msg callMsg
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, reason, err := c.execute(common.HexToAddress(msg.From), common.FromHex(msg.Data), decodeValue(msg.Value), false)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, revert(reason)
	}
	return hexutil.EncodeUint64(120_000), nil
}

func (c *Chain) sendRaw(params []json.RawMessage) (interface{}, error) {
	var rawHex string
	if err := json.Unmarshal(params[0], &rawHex); err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(common.FromHex(rawHex)); err != nil {
		return nil, &chaintest.Error{Code: -32000, Message: "invalid transaction: " + err.Error()}
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, &chaintest.Error{Code: -32000, Message: "invalid sender: " + err.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.ChainId().Cmp(ChainID) != 0 {
		return nil, &chaintest.Error{Code: -32000, Message: "wrong chain id"}
	}
	if tx.Nonce() != c.nonces[from] {
		return nil, &chaintest.Error{Code: -32000, Message: fmt.Sprintf("nonce too low: have %d want %d", tx.Nonce(), c.nonces[from])}
	}
	c.sent++
	c.nonces[from]++
	if c.hold {
		return tx.Hash().Hex(), nil
	}

	status := "0x1"
	if c.mineFailure != "" {
		status = "0x0"
	} else if _, reason, err := c.execute(from, tx.Data(), tx.Value(), true); err != nil || reason != "" {
		status = "0x0"
	}

	c.block++
	c.receipts[tx.Hash()] = map[string]interface{}{
		"transactionHash": tx.Hash().Hex(),
		"status":          status,
		"blockNumber":     hexutil.EncodeUint64(c.block),
		"gasUsed":         "0x1d4c0",
		"from":            strings.ToLower(from.Hex()),
		"to":              strings.ToLower(contract.DefaultAddress),
	}
	return tx.Hash().Hex(), nil
}

func (c *Chain) receipt(params []json.RawMessage) (interface{}, error) {
	var hash string
	if err := json.Unmarshal(params[0], &hash); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[common.HexToHash(hash)]
	if !ok {
		return nil, nil
	}
	return r, nil
}

// execute runs a contract call. It returns the encoded outputs, or a non-empty
// revert reason. State changes only when commit is set.
func (c *Chain) execute(from common.Address, data []byte, value *big.Int, commit bool) ([]byte, string, error) {
	if len(data) < 4 {
		return nil, "", errors.New("missing selector")
	}
	m, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, "", &chaintest.Error{Code: -32000, Message: err.Error()}
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, "", &chaintest.Error{Code: -32000, Message: err.Error()}
	}

	switch m.Name {
	case contract.MethodGetCampaigns:
		out, err := m.Outputs.Pack(c.campaigns)
		return out, "", err

	case contract.MethodNumberOfCampaigns:
		out, err := m.Outputs.Pack(big.NewInt(int64(len(c.campaigns))))
		return out, "", err

	case contract.MethodGetDonators:
		id := args[0].(*big.Int)
		if !id.IsInt64() || id.Int64() >= int64(len(c.campaigns)) {
			out, err := m.Outputs.Pack([]common.Address{}, []*big.Int{})
			return out, "", err
		}
		i := id.Int64()
		donors := c.donors[i]
		if donors == nil {
			donors = []common.Address{}
		}
		amounts := c.amounts[i]
		if amounts == nil {
			amounts = []*big.Int{}
		}
		out, err := m.Outputs.Pack(donors, amounts)
		return out, "", err

	case contract.MethodCreateCampaign:
		deadline := args[4].(*big.Int)
		if deadline.Int64() <= c.now().Unix() {
			return nil, DeadlineReason, nil
		}
		id := big.NewInt(int64(len(c.campaigns)))
		if commit {
			c.campaigns = append(c.campaigns, contract.RawCampaign{
				Owner:           args[0].(common.Address),
				Title:           args[1].(string),
				Description:     args[2].(string),
				Target:          args[3].(*big.Int),
				Deadline:        deadline,
				AmountCollected: new(big.Int),
			})
			c.donors = append(c.donors, nil)
			c.amounts = append(c.amounts, nil)
		}
		out, err := m.Outputs.Pack(id)
		return out, "", err

	case contract.MethodDonateToCampaign:
		id := args[0].(*big.Int)
		if !id.IsInt64() || id.Int64() >= int64(len(c.campaigns)) {
			return nil, "campaign does not exist", nil
		}
		if commit {
			i := id.Int64()
			c.donors[i] = append(c.donors[i], from)
			c.amounts[i] = append(c.amounts[i], new(big.Int).Set(value))
			c.campaigns[i].AmountCollected = new(big.Int).Add(c.campaigns[i].AmountCollected, value)
		}
		return nil, "", nil
	}
	return nil, "", fmt.Errorf("unhandled method %s", m.Name)
}

func decodeValue(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// revert builds the error a node returns for a reverted call, with the
// reason ABI-encoded as Error(string) in data.
func revert(reason string) error {
	strType, _ := abi.NewType("string", "", nil)
	payload, _ := abi.Arguments{{Type: strType}}.Pack(reason)
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)
	return &chaintest.Error{
		Code:    3,
		Message: "execution reverted: " + reason,
		Data:    hexutil.Encode(data),
	}
}
