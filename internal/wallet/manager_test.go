package wallet_test

import (
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first two dev accounts.
const (
	hardhatKey0  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddr0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatKey1  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	hardhatAddr1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func TestAddWithKeyDerivesAddress(t *testing.T) {
	mgr := wallet.NewManager()

	w, err := mgr.AddWithKey("dev", hardhatKey0)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr0, w.Address)
	assert.True(t, w.IsDefault, "first wallet becomes default")

	got, err := mgr.Get("dev")
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestAddWithKeyStoresKeyInKeystore(t *testing.T) {
	ks := wallet.NewInMemoryKeystore()
	mgr := wallet.NewManager(wallet.WithKeyStore(ks))

	w, err := mgr.AddWithKey("dev", "  "+hardhatKey0+"  ")
	require.NoError(t, err)

	key, err := ks.Retrieve(w.KeyRef)
	require.NoError(t, err)
	assert.Equal(t, hardhatKey0[2:], key)
}

func TestAddWithKeyDuplicateName(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("dup", hardhatKey0)
	require.NoError(t, err)

	_, err = mgr.AddWithKey("dup", hardhatKey1)
	assert.ErrorIs(t, err, wallet.ErrWalletExists)
}

func TestAddWithKeyDuplicateAddress(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("a", hardhatKey0)
	require.NoError(t, err)

	_, err = mgr.AddWithKey("b", hardhatKey0)
	assert.ErrorIs(t, err, wallet.ErrWalletExists)
}

func TestAddWithKeyInvalid(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("bad", "not-a-valid-key")
	assert.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestAddWithKeyRequiresName(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("  ", hardhatKey0)
	assert.Error(t, err)
}

func TestListSortedByName(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("zeta", hardhatKey0)
	require.NoError(t, err)
	_, err = mgr.AddWithKey("alpha", hardhatKey1)
	require.NoError(t, err)

	list, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestRemoveDeletesKey(t *testing.T) {
	ks := wallet.NewInMemoryKeystore()
	mgr := wallet.NewManager(wallet.WithKeyStore(ks))
	w, err := mgr.AddWithKey("dev", hardhatKey0)
	require.NoError(t, err)

	_, err = mgr.Remove("dev")
	require.NoError(t, err)

	_, err = mgr.Get("dev")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
	_, err = ks.Retrieve(w.KeyRef)
	assert.Error(t, err)
}

func TestRemoveMissing(t *testing.T) {
	_, err := wallet.NewManager().Remove("ghost")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
}

func TestSetDefault(t *testing.T) {
	mgr := wallet.NewManager()
	_, err := mgr.AddWithKey("a", hardhatKey0)
	require.NoError(t, err)
	_, err = mgr.AddWithKey("b", hardhatKey1)
	require.NoError(t, err)

	require.NoError(t, mgr.SetDefault("b"))
	assert.Equal(t, "b", mgr.Default().Name)

	assert.ErrorIs(t, mgr.SetDefault("ghost"), wallet.ErrWalletNotFound)
}

func TestDefaultNoneWhenEmpty(t *testing.T) {
	assert.Nil(t, wallet.NewManager().Default())
}

func TestByAddress(t *testing.T) {
	mgr := wallet.NewManager()
	w, err := mgr.AddWithKey("dev", hardhatKey0)
	require.NoError(t, err)

	got, err := mgr.ByAddress(w.Addr())
	require.NoError(t, err)
	assert.Equal(t, "dev", got.Name)
}

func TestJSONStorePersistsAcrossManagers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallets.json")
	ks := wallet.NewInMemoryKeystore()

	first := wallet.NewManager(wallet.WithStore(wallet.NewJSONStore(path)), wallet.WithKeyStore(ks))
	_, err := first.AddWithKey("dev", hardhatKey0)
	require.NoError(t, err)

	second := wallet.NewManager(wallet.WithStore(wallet.NewJSONStore(path)), wallet.WithKeyStore(ks))
	w, err := second.Get("dev")
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr0, w.Address)
	assert.True(t, w.IsDefault)
}

func TestJSONStoreLoadNoFile(t *testing.T) {
	wallets, err := wallet.NewJSONStore(filepath.Join(t.TempDir(), "missing.json")).Load()
	require.NoError(t, err)
	assert.Empty(t, wallets)
}
