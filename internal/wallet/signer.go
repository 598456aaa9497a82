package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs transactions for one address through a Provider.
type Signer struct {
	provider Provider
	addr     common.Address
}

// NewSigner binds addr to provider.
func NewSigner(p Provider, addr common.Address) *Signer {
	return &Signer{provider: p, addr: addr}
}

// Address returns the signing account.
func (s *Signer) Address() common.Address { return s.addr }

// SignTx asks the provider to sign tx.
func (s *Signer) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.provider.SignTx(ctx, s.addr, tx, chainID)
}
