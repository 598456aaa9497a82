package session_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/session"
	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// fakeProvider is a scriptable wallet.
type fakeProvider struct {
	mu         sync.Mutex
	accounts   []common.Address
	requestErr error
	accountErr error
	grant      []common.Address
	events     chan wallet.Event
	signed     int
}

func newFake() *fakeProvider {
	return &fakeProvider{events: make(chan wallet.Event, 4)}
}

func (f *fakeProvider) set(accounts ...common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = accounts
}

func (f *fakeProvider) Accounts(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts, f.accountErr
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	f.accounts = f.grant
	return f.accounts, nil
}

func (f *fakeProvider) Subscribe() (<-chan wallet.Event, func()) {
	return f.events, func() {}
}

func (f *fakeProvider) SignTx(_ context.Context, _ common.Address, tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signed++
	return tx, nil
}

func TestStartsDisconnected(t *testing.T) {
	m := session.NewManager(newFake())
	assert.Equal(t, session.Session{State: session.Disconnected}, m.Current())
	assert.Nil(t, m.Signer())
}

func TestCheckWithoutProviderStaysDisconnected(t *testing.T) {
	m := session.NewManager(nil)
	s, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Disconnected, s.State)
	assert.Equal(t, common.Address{}, s.Address)
}

func TestRequestWithoutProviderIsUnavailable(t *testing.T) {
	m := session.NewManager(nil)
	s, err := m.RequestConnection(context.Background())
	assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)
	assert.Equal(t, session.Disconnected, s.State)
	assert.Equal(t, session.Disconnected, m.Current().State)
}

func TestCheckPicksUpExistingAuthorization(t *testing.T) {
	p := newFake()
	p.set(alice, bob)
	m := session.NewManager(p)

	s, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Session{State: session.Connected, Address: alice}, s)
	assert.Equal(t, s, m.Current())
}

func TestCheckWithNoGrantsIsDisconnected(t *testing.T) {
	m := session.NewManager(newFake())
	s, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Disconnected, s.State)
}

func TestCheckProviderErrorPropagates(t *testing.T) {
	p := newFake()
	p.accountErr = errors.New("keyring unavailable")
	m := session.NewManager(p)

	s, err := m.CheckExistingAuthorization(context.Background())
	assert.ErrorContains(t, err, "keyring unavailable")
	assert.Equal(t, session.Disconnected, s.State)
}

func TestRequestConnectionApproved(t *testing.T) {
	p := newFake()
	p.grant = []common.Address{alice}
	m := session.NewManager(p)

	s, err := m.RequestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Session{State: session.Connected, Address: alice}, s)

	signer := m.Signer()
	require.NotNil(t, signer)
	assert.Equal(t, alice, signer.Address())
}

func TestRequestConnectionRejected(t *testing.T) {
	p := newFake()
	p.requestErr = wallet.ErrUserRejected
	m := session.NewManager(p)

	s, err := m.RequestConnection(context.Background())
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.Equal(t, session.Disconnected, s.State)
	assert.Equal(t, session.Disconnected, m.Current().State)
}

func TestRequestConnectionFailureKeepsPreviousAccount(t *testing.T) {
	p := newFake()
	p.grant = []common.Address{alice}
	m := session.NewManager(p)
	_, err := m.RequestConnection(context.Background())
	require.NoError(t, err)

	p.requestErr = wallet.ErrUserRejected
	s, err := m.RequestConnection(context.Background())
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.Equal(t, session.Session{State: session.Connected, Address: alice}, s)
}

func TestRequestConnectionNotifiesSubscribers(t *testing.T) {
	p := newFake()
	p.grant = []common.Address{alice}
	m := session.NewManager(p)
	updates, cancel := m.Subscribe()
	defer cancel()

	var seen []session.State
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range updates {
			seen = append(seen, s.State)
			if s.State == session.Connected {
				return
			}
		}
	}()

	_, err := m.RequestConnection(context.Background())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no Connected update")
	}
	assert.Equal(t, session.Connected, seen[len(seen)-1])
}

func TestDisconnect(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	s := m.Disconnect()
	assert.Equal(t, session.Disconnected, s.State)
	assert.Nil(t, m.Signer())
}

func TestSubscriberSeesLatestOnly(t *testing.T) {
	p := newFake()
	m := session.NewManager(p)
	updates, cancel := m.Subscribe()
	defer cancel()

	p.set(alice)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	p.set(bob)
	_, err = m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	s := <-updates
	assert.Equal(t, bob, s.Address)
	select {
	case extra := <-updates:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestWatchFollowsAccountSwitch(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, time.Hour) //nolint:errcheck

	p.events <- wallet.Event{Kind: wallet.EventAccountsChanged, Accounts: []common.Address{bob}}
	assert.Eventually(t, func() bool {
		return m.Current().Address == bob
	}, time.Second, 5*time.Millisecond)

	p.events <- wallet.Event{Kind: wallet.EventLocked}
	assert.Eventually(t, func() bool {
		return m.Current().State == session.Disconnected
	}, time.Second, 5*time.Millisecond)
}

func TestWatchReconcilesWithWallet(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 5*time.Millisecond) //nolint:errcheck

	// Changed behind our back, no event sent.
	p.set(bob)
	assert.Eventually(t, func() bool {
		return m.Current().Address == bob
	}, time.Second, 5*time.Millisecond)
}

func TestWatchDoesNotReconnectAfterDisconnect(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	m.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = m.Watch(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, session.Disconnected, m.Current().State)
}

func TestWatchReconnectsAfterWalletUnlock(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, time.Hour) //nolint:errcheck

	p.set()
	p.events <- wallet.Event{Kind: wallet.EventLocked}
	assert.Eventually(t, func() bool {
		return m.Current().State == session.Disconnected
	}, time.Second, 5*time.Millisecond)

	p.set(alice)
	p.events <- wallet.Event{Kind: wallet.EventAccountsChanged, Accounts: []common.Address{alice}}
	assert.Eventually(t, func() bool {
		return m.Current() == session.Session{State: session.Connected, Address: alice}
	}, time.Second, 5*time.Millisecond)
}

func TestWatchReconcileRecoversFromLock(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 5*time.Millisecond) //nolint:errcheck

	p.set()
	assert.Eventually(t, func() bool {
		return m.Current().State == session.Disconnected
	}, time.Second, 5*time.Millisecond)

	// Unlocked with no event sent.
	p.set(bob)
	assert.Eventually(t, func() bool {
		return m.Current().Address == bob
	}, time.Second, 5*time.Millisecond)
}

func TestRequestConnectionClearsLocalDisconnect(t *testing.T) {
	p := newFake()
	p.set(alice)
	p.grant = []common.Address{alice}
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)
	m.Disconnect()

	_, err = m.RequestConnection(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, time.Hour) //nolint:errcheck

	p.events <- wallet.Event{Kind: wallet.EventAccountsChanged, Accounts: []common.Address{bob}}
	assert.Eventually(t, func() bool {
		return m.Current().Address == bob
	}, time.Second, 5*time.Millisecond)
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	m := session.NewManager(newFake())
	for _, d := range []time.Duration{0, -time.Second} {
		err := m.Watch(context.Background(), d)
		assert.ErrorIs(t, err, session.ErrInvalidInterval, d.String())
	}
}

func TestWatchWithoutProvider(t *testing.T) {
	err := session.NewManager(nil).Watch(context.Background(), time.Second)
	assert.ErrorIs(t, err, wallet.ErrWalletUnavailable)
}

func TestSignerRoutesThroughProvider(t *testing.T) {
	p := newFake()
	p.set(alice)
	m := session.NewManager(p)
	_, err := m.CheckExistingAuthorization(context.Background())
	require.NoError(t, err)

	tx := types.NewTx(&types.LegacyTx{})
	_, err = m.Signer().SignTx(context.Background(), tx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.signed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", session.Disconnected.String())
	assert.Equal(t, "connecting", session.Connecting.String())
	assert.Equal(t, "connected", session.Connected.String())
}
