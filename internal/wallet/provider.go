package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider errors.
var (
	ErrWalletUnavailable = errors.New("no wallet provider available")
	ErrUserRejected      = errors.New("request rejected by user")
	ErrLocked            = errors.New("wallet is locked")
	ErrNotAuthorized     = errors.New("account not authorized")
)

// Provider is the boundary to whatever holds the user's keys. Only
// RequestAccounts and SignTx may ask the user anything.
type Provider interface {
	// Accounts returns the accounts already authorized for this client,
	// selected account first. It never prompts.
	Accounts(ctx context.Context) ([]common.Address, error)

	// RequestAccounts asks the user to authorize an account. A decline is
	// ErrUserRejected.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Subscribe streams account changes until the returned func is called.
	Subscribe() (<-chan Event, func())

	// SignTx signs tx on behalf of from.
	SignTx(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// EventKind says why the visible accounts changed.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventLocked          EventKind = "locked"
	EventDisconnected    EventKind = "disconnected"
)

// Event is an account change pushed by a provider. Accounts is what
// Accounts would return right after the change.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
}

// Approver is the user-facing half of a provider: it decides on connection
// and signing requests. Implementations return ErrUserRejected on decline.
type Approver interface {
	ApproveConnection(ctx context.Context, candidates []*Wallet) (*Wallet, error)
	ApproveTransaction(ctx context.Context, w *Wallet, tx *types.Transaction) error
}

// AutoApprove accepts every request. Connection picks the named wallet, or
// the default wallet when Wallet is empty.
type AutoApprove struct {
	Wallet string
}

func (a AutoApprove) ApproveConnection(_ context.Context, candidates []*Wallet) (*Wallet, error) {
	for _, w := range candidates {
		if a.Wallet != "" && w.Name == a.Wallet {
			return w, nil
		}
	}
	if a.Wallet != "" {
		return nil, ErrWalletNotFound
	}
	for _, w := range candidates {
		if w.IsDefault {
			return w, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return nil, ErrWalletNotFound
}

func (AutoApprove) ApproveTransaction(context.Context, *Wallet, *types.Transaction) error {
	return nil
}

// Reject declines every request.
type Reject struct{}

func (Reject) ApproveConnection(context.Context, []*Wallet) (*Wallet, error) {
	return nil, ErrUserRejected
}

func (Reject) ApproveTransaction(context.Context, *Wallet, *types.Transaction) error {
	return ErrUserRejected
}
