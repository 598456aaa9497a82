package contracttest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address

	// Fail, when set, is returned by SignTx instead of a signature.
	Fail error
}

// NewSigner generates a fresh account.
func NewSigner(t testing.TB) *KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the signer's account.
func (s *KeySigner) Address() common.Address { return s.addr }

// SignTx signs tx for chainID.
func (s *KeySigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
