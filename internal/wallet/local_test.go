package wallet_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T, approver wallet.Approver, keys ...string) *wallet.Local {
	t.Helper()
	mgr := wallet.NewManager()
	names := []string{"dev0", "dev1"}
	for i, k := range keys {
		_, err := mgr.AddWithKey(names[i], k)
		require.NoError(t, err)
	}
	return wallet.NewLocal(mgr, wallet.WithApprover(approver))
}

func testTx() *types.Transaction {
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(31337),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
}

func recv(t *testing.T, ch <-chan wallet.Event) wallet.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return wallet.Event{}
	}
}

func TestAccountsEmptyBeforeAuthorization(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	accounts, err := l.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRequestAccountsApproved(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	events, cancel := l.Subscribe()
	defer cancel()

	accounts, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress(hardhatAddr0)}, accounts)

	ev := recv(t, events)
	assert.Equal(t, wallet.EventAccountsChanged, ev.Kind)
	assert.Equal(t, accounts, ev.Accounts)

	again, err := l.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accounts, again)
}

func TestRequestAccountsRejected(t *testing.T) {
	l := newLocal(t, wallet.Reject{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.True(t, wallet.IsRejected(err))

	accounts, err := l.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRequestAccountsNoWallets(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{})
	_, err := l.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
}

func TestAutoApprovePicksNamedWallet(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{Wallet: "dev1"}, hardhatKey0, hardhatKey1)
	accounts, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(hardhatAddr1), accounts[0])
}

func TestSwitchSelectsAndAuthorizes(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{Wallet: "dev0"}, hardhatKey0, hardhatKey1)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	events, cancel := l.Subscribe()
	defer cancel()

	require.NoError(t, l.Switch("dev1"))
	ev := recv(t, events)
	assert.Equal(t, wallet.EventAccountsChanged, ev.Kind)
	assert.Equal(t, []common.Address{common.HexToAddress(hardhatAddr1), common.HexToAddress(hardhatAddr0)}, ev.Accounts)

	assert.ErrorIs(t, l.Switch("ghost"), wallet.ErrWalletNotFound)
}

func TestLockHidesAccounts(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	events, cancel := l.Subscribe()
	defer cancel()
	require.NoError(t, l.Lock())
	assert.Equal(t, wallet.EventLocked, recv(t, events).Kind)

	accounts, err := l.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = l.SignTx(context.Background(), common.HexToAddress(hardhatAddr0), testTx(), big.NewInt(31337))
	assert.ErrorIs(t, err, wallet.ErrLocked)
}

func TestRevokeForgetsGrants(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	events, cancel := l.Subscribe()
	defer cancel()
	require.NoError(t, l.Revoke())
	assert.Equal(t, wallet.EventDisconnected, recv(t, events).Kind)

	_, err = l.SignTx(context.Background(), common.HexToAddress(hardhatAddr0), testTx(), big.NewInt(31337))
	assert.ErrorIs(t, err, wallet.ErrNotAuthorized)
}

func TestRemoveWalletDropsGrant(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.RemoveWallet("dev0"))
	accounts, err := l.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSignTxRecoversSender(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	chainID := big.NewInt(31337)
	signer := wallet.NewSigner(l, common.HexToAddress(hardhatAddr0))
	signed, err := signer.SignTx(context.Background(), testTx(), chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(hardhatAddr0), from)
	assert.Equal(t, common.HexToAddress(hardhatAddr0), signer.Address())
}

type connectOnly struct{ wallet.AutoApprove }

func (connectOnly) ApproveTransaction(context.Context, *wallet.Wallet, *types.Transaction) error {
	return wallet.ErrUserRejected
}

func TestSignTxRejectedByApprover(t *testing.T) {
	l := newLocal(t, connectOnly{}, hardhatKey0)
	_, err := l.RequestAccounts(context.Background())
	require.NoError(t, err)

	_, err = l.SignTx(context.Background(), common.HexToAddress(hardhatAddr0), testTx(), big.NewInt(31337))
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	events, cancel := l.Subscribe()
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)
	require.NoError(t, l.Lock())
}

func TestFileGrantsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.json")
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("dev0", hardhatKey0)
	require.NoError(t, err)

	first := wallet.NewLocal(mgr, wallet.WithApprover(wallet.AutoApprove{}), wallet.WithGrantStore(wallet.NewFileGrants(path)))
	_, err = first.RequestAccounts(context.Background())
	require.NoError(t, err)

	second := wallet.NewLocal(mgr, wallet.WithGrantStore(wallet.NewFileGrants(path)))
	accounts, err := second.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress(hardhatAddr0)}, accounts)
}

func TestAccountsHonoursContext(t *testing.T) {
	l := newLocal(t, wallet.AutoApprove{}, hardhatKey0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Accounts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
