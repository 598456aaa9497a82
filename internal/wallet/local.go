package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Local is a Provider over wallets registered on this machine. Keys come from
// the Manager's keystore; authorization state comes from a GrantStore.
type Local struct {
	mgr      *Manager
	grants   GrantStore
	approver Approver
	log      zerolog.Logger

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithApprover sets who answers connection and signing requests. The default
// rejects everything.
func WithApprover(a Approver) LocalOption {
	return func(l *Local) { l.approver = a }
}

// WithGrantStore sets where authorization state is kept. The default is in
// memory.
func WithGrantStore(s GrantStore) LocalOption {
	return func(l *Local) { l.grants = s }
}

// WithLogger sets the provider logger.
func WithLogger(log zerolog.Logger) LocalOption {
	return func(l *Local) { l.log = log }
}

// NewLocal creates a provider over mgr.
func NewLocal(mgr *Manager, opts ...LocalOption) *Local {
	l := &Local{
		mgr:      mgr,
		grants:   &MemGrants{},
		approver: Reject{},
		log:      zerolog.Nop(),
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Manager returns the wallet manager behind the provider.
func (l *Local) Manager() *Manager { return l.mgr }

// Accounts returns the authorized accounts that still exist, selected first.
// A locked wallet exposes none.
func (l *Local) Accounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := l.grants.LoadGrants()
	if err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}
	return l.visible(g), nil
}

func (l *Local) visible(g Grants) []common.Address {
	if g.Locked || g.Selected == (common.Address{}) {
		return nil
	}
	if _, err := l.mgr.ByAddress(g.Selected); err != nil {
		return nil
	}
	out := []common.Address{g.Selected}
	for _, a := range g.Authorized {
		if a == g.Selected {
			continue
		}
		if _, err := l.mgr.ByAddress(a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// RequestAccounts asks the approver to pick and authorize a wallet.
func (l *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	wallets, err := l.mgr.List()
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: no wallets configured", ErrWalletNotFound)
	}

	w, err := l.approver.ApproveConnection(ctx, wallets)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrUserRejected
	}

	g, err := l.update(func(g *Grants) error {
		g.authorize(w.Addr())
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("wallet", w.Name).Str("address", w.Address).Msg("account authorized")
	accounts := l.visible(g)
	l.emit(Event{Kind: EventAccountsChanged, Accounts: accounts})
	return accounts, nil
}

// Switch selects the named wallet, authorizing it if needed.
func (l *Local) Switch(name string) error {
	w, err := l.mgr.Get(name)
	if err != nil {
		return err
	}
	g, err := l.update(func(g *Grants) error {
		g.authorize(w.Addr())
		return nil
	})
	if err != nil {
		return err
	}
	l.emit(Event{Kind: EventAccountsChanged, Accounts: l.visible(g)})
	return nil
}

// Lock hides all accounts until the next RequestAccounts or Switch.
func (l *Local) Lock() error {
	if _, err := l.update(func(g *Grants) error {
		g.Locked = true
		return nil
	}); err != nil {
		return err
	}
	l.emit(Event{Kind: EventLocked})
	return nil
}

// Revoke forgets every authorization.
func (l *Local) Revoke() error {
	if err := l.grants.SaveGrants(Grants{}); err != nil {
		return fmt.Errorf("saving grants: %w", err)
	}
	l.emit(Event{Kind: EventDisconnected})
	return nil
}

// RemoveWallet deletes a wallet, its key and any authorization it had.
func (l *Local) RemoveWallet(name string) error {
	w, err := l.mgr.Remove(name)
	if err != nil {
		return err
	}
	g, err := l.update(func(g *Grants) error {
		g.drop(w.Addr())
		return nil
	})
	if err != nil {
		return err
	}
	l.emit(Event{Kind: EventAccountsChanged, Accounts: l.visible(g)})
	return nil
}

// SignTx signs with the key of an authorized, unlocked account after the
// approver accepts the transaction.
func (l *Local) SignTx(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	g, err := l.grants.LoadGrants()
	if err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}
	if g.Locked {
		return nil, ErrLocked
	}
	if !g.Has(from) {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, from.Hex())
	}
	w, err := l.mgr.ByAddress(from)
	if err != nil {
		return nil, err
	}

	if err := l.approver.ApproveTransaction(ctx, w, tx); err != nil {
		return nil, err
	}

	hexKey, err := l.mgr.Keys().Retrieve(w.KeyRef)
	if err != nil {
		return nil, fmt.Errorf("retrieving key: %w", err)
	}
	privKey, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), privKey)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return signed, nil
}

// Subscribe registers for account events. Events are dropped for a
// subscriber whose buffer is full.
func (l *Local) Subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, 8)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}

func (l *Local) emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			l.log.Debug().Str("event", string(ev.Kind)).Msg("subscriber busy, event dropped")
		}
	}
}

func (l *Local) update(fn func(*Grants) error) (Grants, error) {
	g, err := l.grants.LoadGrants()
	if err != nil {
		return Grants{}, fmt.Errorf("loading grants: %w", err)
	}
	if err := fn(&g); err != nil {
		return Grants{}, err
	}
	if err := l.grants.SaveGrants(g); err != nil {
		return Grants{}, fmt.Errorf("saving grants: %w", err)
	}
	return g, nil
}

// IsRejected reports whether err is a user decline.
func IsRejected(err error) bool { return errors.Is(err, ErrUserRejected) }
