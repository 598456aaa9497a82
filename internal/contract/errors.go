package contract

import (
	"errors"
	"fmt"
)

// Errors returned by the gateway.
var (
	ErrNoSignerAvailable   = errors.New("no signer available: connect a wallet first")
	ErrTransactionTimeout  = errors.New("transaction confirmation timed out")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrUnknownMethod       = errors.New("function not found in ABI")
	ErrNotReadMethod       = errors.New("function is not a read function")
	ErrNotWriteMethod      = errors.New("function is not a write function")
	ErrNoContractCode      = errors.New("empty call result")
)

// RevertError means the chain rejected a call or transaction. Reason is the
// contract's message, verbatim, or empty when none was given.
type RevertError struct {
	Method string
	TxHash string // empty when the revert happened before broadcast
	Reason string
}

func (e *RevertError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no reason given"
	}
	if e.TxHash != "" {
		return fmt.Sprintf("%s reverted (hash: %s): %s", e.Method, e.TxHash, reason)
	}
	return fmt.Sprintf("%s reverted: %s", e.Method, reason)
}

// Is makes errors.Is(err, ErrTransactionReverted) match.
func (e *RevertError) Is(target error) bool { return target == ErrTransactionReverted }

// TimeoutError means a broadcast transaction was not confirmed within the
// configured bounds. It may still be mined later.
type TimeoutError struct {
	TxHash string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed: %v", e.TxHash, e.Err)
}

// Is makes errors.Is(err, ErrTransactionTimeout) match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTransactionTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }

// BroadcastError means eth_sendRawTransaction failed. When Rejected is false
// the node may still have received the transaction.
type BroadcastError struct {
	TxHash   string
	Rejected bool
	Err      error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcasting transaction %s: %v", e.TxHash, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }
