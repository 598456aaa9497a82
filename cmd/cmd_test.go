package cmd

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/contract/contracttest"
	"github.com/Mohsinsiddi/w3fund/internal/price"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first dev account.
const (
	aliceKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	aliceAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type testEnv struct {
	t     *testing.T
	dir   string
	chain *contracttest.Chain
	keys  *wallet.InMemoryKeystore
	// opened counts keystore opens.
	opened int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:     t,
		dir:   t.TempDir(),
		chain: contracttest.New(t),
		keys:  wallet.NewInMemoryKeystore(),
	}
	t.Setenv("W3FUND_POLL_INTERVAL", "5ms")

	origKeys, origApprover, origQuoter, origNow := openKeyStore, newApprover, newQuoter, now
	openKeyStore = func(string) (wallet.KeyStore, error) {
		env.opened++
		return env.keys, nil
	}
	newApprover = func(*cobra.Command) wallet.Approver { return wallet.AutoApprove{} }
	t.Cleanup(func() {
		openKeyStore, newApprover, newQuoter, now = origKeys, origApprover, origQuoter, origNow
	})
	return env
}

// resetFlags puts every flag back to its default; flag variables are
// package globals and outlive a single Execute.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runContext(context.Background(), args...)
}

func (e *testEnv) runContext(ctx context.Context, args ...string) (string, error) {
	e.t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", e.dir, "--rpc", e.chain.URL()}, args...))
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *testEnv) connectAlice() {
	e.t.Helper()
	e.mustRun("wallet", "add", "alice", "--key", aliceKey)
	out := e.mustRun("connect", "--wallet", "alice")
	require.Contains(e.t, out, aliceAddr)
}

func TestCampaignsWithoutWallet(t *testing.T) {
	env := newTestEnv(t)
	env.chain.Seed(contract.RawCampaign{Owner: common.HexToAddress("0xaa"), Title: "Roof repair", Target: wei("1000000000000000000")})
	env.chain.Seed(contract.RawCampaign{Owner: common.HexToAddress("0xbb"), Title: "Library books", Target: wei("2000000000000000000")})

	out := env.mustRun("campaigns")
	assert.Contains(t, out, "All campaigns")
	assert.Contains(t, out, "Roof repair")
	assert.Contains(t, out, "Library books")
	assert.NotContains(t, out, "My campaigns")
	assert.Zero(t, env.opened, "reads must not touch the keystore")
}

func TestCampaignsMineNeedsWallet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("campaigns", "--mine")
	assert.ErrorContains(t, err, "--mine needs a connected wallet")
}

func TestCampaignNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("campaign", "4")
	assert.Error(t, err)
}

func TestCreateAndDonate(t *testing.T) {
	env := newTestEnv(t)
	env.connectAlice()

	out := env.mustRun("create",
		"--title", "Community garden",
		"--description", "Raised beds",
		"--target", "2.5",
		"--deadline", "30d")
	assert.Contains(t, out, "Campaign #0 created")
	assert.Contains(t, out, "tx 0x")

	raw := env.chain.Campaigns()
	require.Len(t, raw, 1)
	assert.Equal(t, aliceAddr, raw[0].Owner.Hex())
	assert.Equal(t, "Community garden", raw[0].Title)

	out = env.mustRun("donate", "0", "1.5")
	assert.Contains(t, out, "Donated 1.5 ETH to #0.")
	assert.Contains(t, out, "Community garden")

	out = env.mustRun("campaigns")
	assert.Contains(t, out, "All campaigns")
	assert.Contains(t, out, "My campaigns")

	out = env.mustRun("donations", "0")
	assert.Contains(t, out, "1.5")

	out = env.mustRun("pending")
	assert.Contains(t, out, "Nothing submitted.")

	out = env.mustRun("pending", "--all")
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "donate")
	assert.Contains(t, out, "confirmed")
}

func TestDonationsExport(t *testing.T) {
	env := newTestEnv(t)
	id := env.chain.Seed(contract.RawCampaign{Owner: common.HexToAddress("0xaa"), Title: "Books", Target: wei("1000000000000000000")})
	env.chain.SeedDonations(id, []common.Address{common.HexToAddress("0xd1")}, []*big.Int{wei("250000000000000000")})
	path := filepath.Join(t.TempDir(), "ledger.xlsx")

	out := env.mustRun("donations", "0", "--xlsx", path)
	assert.Contains(t, out, "0.25")
	assert.Contains(t, out, "Ledger written to")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestCreateWithoutWallet(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("create",
		"--title", "t", "--description", "d", "--target", "1", "--deadline", "7d")
	require.ErrorIs(t, err, contract.ErrNoSignerAvailable)
	assert.Contains(t, explain(err), "w3fund connect")
	assert.Equal(t, 0, env.chain.Sent())
}

func TestCreateInvalidFormNeverPrompts(t *testing.T) {
	env := newTestEnv(t)
	prompted := false
	newApprover = func(*cobra.Command) wallet.Approver {
		prompted = true
		return wallet.Reject{}
	}

	_, err := env.run("create", "--title", "only a title")
	var verr *campaign.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{campaign.FieldDescription, campaign.FieldTarget, campaign.FieldDeadline}, verr.Fields)
	assert.False(t, prompted)
	assert.Equal(t, 0, env.chain.Node.Calls(""))
	assert.Contains(t, explain(err), "fill in: description, target, deadline")
}

func TestDonateBadAmount(t *testing.T) {
	env := newTestEnv(t)
	env.chain.Seed(contract.RawCampaign{Title: "x"})
	env.connectAlice()

	_, err := env.run("donate", "0", "0")
	assert.ErrorIs(t, err, units.ErrInvalidAmount)
	assert.Equal(t, 0, env.chain.Sent())
}

func TestDonateRejectedInWallet(t *testing.T) {
	env := newTestEnv(t)
	env.chain.Seed(contract.RawCampaign{Title: "x"})
	env.connectAlice()
	newApprover = func(*cobra.Command) wallet.Approver { return wallet.Reject{} }

	_, err := env.run("donate", "0", "1")
	require.Error(t, err)
	assert.True(t, wallet.IsRejected(err))
	assert.Contains(t, explain(err), "rejected")
	assert.Equal(t, 0, env.chain.Sent())
}

func TestConnectStatusDisconnect(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("connect", "--check")
	assert.Contains(t, out, "disconnected")

	env.connectAlice()

	out = env.mustRun("status")
	assert.Contains(t, out, aliceAddr)
	assert.Contains(t, out, "Hardhat (31337)")
	assert.Contains(t, out, "Campaigns")

	out = env.mustRun("disconnect")
	assert.Contains(t, out, "disconnected")

	out = env.mustRun("connect", "--check")
	assert.Contains(t, out, "disconnected")
}

func TestWatchPrintsSessionUntilCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.connectAlice()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := env.runContext(ctx, "watch", "--interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, aliceAddr)
	assert.NotContains(t, out, "not connected")
}

func TestWatchRejectsZeroInterval(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("watch", "--interval", "0")
	assert.ErrorContains(t, err, "--interval must be positive")
}

func TestConnectWithoutWallets(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("connect")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
	assert.Contains(t, explain(err), "w3fund wallet add")
}

func TestCampaignFiat(t *testing.T) {
	env := newTestEnv(t)
	env.chain.Seed(contract.RawCampaign{Title: "Books", Target: wei("2500000000000000000")})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum":{"usd":2000}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	newQuoter = func(fiat string) *price.Quoter { return price.NewQuoter(fiat, price.WithBaseURL(srv.URL)) }

	out := env.mustRun("campaign", "0", "--fiat", "usd")
	assert.Contains(t, out, "In USD")
	assert.Contains(t, out, "5000.00 USD")
}

func TestConfigSetShow(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("config", "set", config.KeyConfirmBlocks, "2")
	assert.Contains(t, out, "confirm_blocks set to")

	out = env.mustRun("config", "show")
	assert.Contains(t, out, config.KeyConfirmBlocks)
	assert.Contains(t, out, filepath.Join(env.dir, "config.toml"))

	_, err := env.run("config", "set", config.KeyContractAddress, "not-an-address")
	assert.Error(t, err)

	out = env.mustRun("config", "path")
	assert.Equal(t, env.dir, strings.TrimSpace(out))
}

func TestConvert(t *testing.T) {
	pairs, err := conversion("1.5", "eth")
	require.NoError(t, err)
	rows := toMap(pairs)
	assert.Equal(t, "1.5 ETH", rows["ETH"])
	assert.Equal(t, "1500000000000000000 wei", rows["Wei"])
	assert.Equal(t, "0x14d1120d7b160000", rows["Hex"])

	pairs, err = conversion("50", "gwei")
	require.NoError(t, err)
	assert.Equal(t, "50000000000 wei", toMap(pairs)["Wei"])

	pairs, err = conversion("2000000000000000000000000000000000000000000", "raw")
	require.NoError(t, err)
	rows = toMap(pairs)
	assert.Equal(t, "yes, divided by 10^18", rows["Corrected"])
	assert.Equal(t, "2000000.0 ETH", rows["ETH"])

	_, err = conversion("1", "btc")
	assert.ErrorContains(t, err, "unknown unit")
	_, err = conversion("1.5", "wei")
	assert.ErrorIs(t, err, units.ErrInvalidAmount)
}

func TestParseDeadline(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"30d", from.Add(30 * 24 * time.Hour)},
		{"36h", from.Add(36 * time.Hour)},
		{"2026-04-01", time.Date(2026, 4, 1, 23, 59, 59, 0, time.Local)},
		{"2026-04-01 09:30", time.Date(2026, 4, 1, 9, 30, 0, 0, time.Local)},
		{"2026-04-01T09:30", time.Date(2026, 4, 1, 9, 30, 0, 0, time.Local)},
		{"2026-04-01T09:30:00Z", time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDeadline(tt.in, from)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"", "soon", "0d", "-3d", "31/12/2026"} {
		_, err := parseDeadline(bad, from)
		assert.Error(t, err, bad)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	for _, bad := range []string{"-1", "x", "1.5", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal " + s)
	}
	return v
}

func toMap(pairs [][2]string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p[0]] = p[1]
	}
	return m
}
