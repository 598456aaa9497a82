package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/price"
	"github.com/Mohsinsiddi/w3fund/internal/session"
	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Seams replaced in tests.
var (
	openKeyStore = func(dir string) (wallet.KeyStore, error) { return wallet.OpenKeystore(dir) }
	newApprover  = func(cmd *cobra.Command) wallet.Approver {
		return ui.NewApprover(ui.WithIO(cmd.InOrStdin(), cmd.ErrOrStderr()))
	}
	newQuoter = func(fiat string) *price.Quoter { return price.NewQuoter(fiat) }
	now       = time.Now
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// lazyKeys opens the keystore on first use so read-only commands never touch
// the OS keychain.
type lazyKeys struct {
	dir  string
	once sync.Once
	ks   wallet.KeyStore
	err  error
}

func (l *lazyKeys) open() (wallet.KeyStore, error) {
	l.once.Do(func() { l.ks, l.err = openKeyStore(l.dir) })
	return l.ks, l.err
}

func (l *lazyKeys) Store(name, hexKey string) (string, error) {
	ks, err := l.open()
	if err != nil {
		return "", err
	}
	return ks.Store(name, hexKey)
}

func (l *lazyKeys) Retrieve(ref string) (string, error) {
	ks, err := l.open()
	if err != nil {
		return "", err
	}
	return ks.Retrieve(ref)
}

func (l *lazyKeys) Delete(ref string) error {
	ks, err := l.open()
	if err != nil {
		return err
	}
	return ks.Delete(ref)
}

func newWalletManager() *wallet.Manager {
	return wallet.NewManager(
		wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())),
		wallet.WithKeyStore(&lazyKeys{dir: cfg.KeysDir()}),
	)
}

// newProvider builds the local wallet. --yes approves with the default
// wallet instead of prompting.
func newProvider(cmd *cobra.Command, mgr *wallet.Manager) *wallet.Local {
	var approver wallet.Approver
	if yesFlag {
		approver = wallet.AutoApprove{Wallet: cfg.DefaultWallet}
	} else {
		approver = newApprover(cmd)
	}
	return wallet.NewLocal(mgr,
		wallet.WithApprover(approver),
		wallet.WithGrantStore(wallet.NewFileGrants(cfg.GrantsPath())),
		wallet.WithLogger(logger),
	)
}

// walletSession is the wallet side of one invocation.
type walletSession struct {
	provider *wallet.Local
	session  *session.Manager
}

func openSession(cmd *cobra.Command) *walletSession {
	p := newProvider(cmd, newWalletManager())
	return &walletSession{
		provider: p,
		session:  session.NewManager(p, session.WithLogger(logger)),
	}
}

// restore reconnects silently if an account was authorized earlier. A
// broken wallet never blocks reads, so failures only log.
func (w *walletSession) restore(ctx context.Context) session.Session {
	s, err := w.session.CheckExistingAuthorization(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("wallet unavailable, continuing read-only")
	}
	return s
}

func newGateway() (*contract.Gateway, error) {
	opts := []contract.Option{
		contract.WithConfirmation(cfg.ConfirmTimeout, cfg.ConfirmBlocks),
		contract.WithPollInterval(cfg.PollInterval),
		contract.WithGasFallback(config.GasLimitContractCall),
		contract.WithLogger(logger),
		contract.WithClientOptions(
			chain.WithRetries(cfg.ReadRetries),
			chain.WithLogger(logger),
		),
	}
	if id := cfg.PinnedChainID(); id != nil {
		opts = append(opts, contract.WithChainID(id))
	}
	return contract.NewGateway(cfg.ContractAddress, opts...)
}

func readHandle() (*contract.ReadHandle, error) {
	gw, err := newGateway()
	if err != nil {
		return nil, err
	}
	return gw.ForReading(cfg.RPCURL), nil
}

// writeHandle requires a connected session.
func writeHandle(ctx context.Context, cmd *cobra.Command) (*contract.WriteHandle, error) {
	ws := openSession(cmd)
	if _, err := ws.session.CheckExistingAuthorization(ctx); err != nil {
		return nil, err
	}
	gw, err := newGateway()
	if err != nil {
		return nil, err
	}
	return gw.ForWriting(cfg.RPCURL, ws.session.Signer())
}

func newRepository() *campaign.Repository {
	return campaign.NewRepository(campaign.WithRepositoryLogger(logger))
}

func newWriter() *campaign.Writer {
	return campaign.NewWriter(
		campaign.WithSubmissionStore(campaign.NewJSONSubmissions(cfg.SubmissionsPath())),
		campaign.WithRepository(newRepository()),
		campaign.WithWriterLogger(logger),
		campaign.WithClock(now),
	)
}

// txLine shows a transaction hash, linked on the explorer when the configured
// network has one.
func txLine(hash string) string {
	if n, err := chain.NetworkByID(cfg.ChainID); err == nil {
		if u := n.TxURL(hash); u != "" {
			return ui.Meta("tx " + hash + "  " + u)
		}
	}
	return ui.Meta("tx " + hash)
}

// readTimeout bounds a read-only command.
func readTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), config.RPCReadTimeout)
}

// explain turns an error into a message with a next step where one exists.
func explain(err error) string {
	var (
		verr    *campaign.ValidationError
		already *campaign.AlreadySubmittedError
		timeout *contract.TimeoutError
		revert  *contract.RevertError
		bcast   *contract.BroadcastError
		ledger  *campaign.LedgerError
	)
	msg := ui.Err(err.Error())
	switch {
	case errors.As(err, &verr):
		return msg + "\n" + ui.Hint("fill in: "+strings.Join(verr.Fields, ", "))
	case errors.As(err, &ledger):
		return msg + "\n" + ui.Hint("the transaction was sent but w3fund pending will not list it")
	case errors.As(err, &already):
		return msg + "\n" + ui.Hint("check it with: w3fund pending resume "+already.Submission.ID.String()[:8])
	case errors.As(err, &timeout):
		return msg + "\n" + ui.Hint("it may still confirm: w3fund pending")
	case errors.As(err, &revert):
		return msg
	case errors.As(err, &bcast) && !bcast.Rejected:
		return msg + "\n" + ui.Hint("the node may have it anyway: w3fund pending")
	case errors.Is(err, contract.ErrNoSignerAvailable):
		return msg + "\n" + ui.Hint("connect a wallet first: w3fund connect")
	case wallet.IsRejected(err):
		return ui.Warn("Request rejected in the wallet.")
	case errors.Is(err, wallet.ErrWalletNotFound):
		return msg + "\n" + ui.Hint("add one with: w3fund wallet add <name>")
	case errors.Is(err, units.ErrInvalidAmount):
		return msg + "\n" + ui.Hint("amounts are decimal ETH, e.g. 0.25")
	case errors.Is(err, campaign.ErrFetchFailed):
		return msg + "\n" + ui.Hint(fmt.Sprintf("is a node running at %s?", rpcHint()))
	}
	return msg
}

func rpcHint() string {
	if cfg == nil {
		return config.DefaultRPCURL
	}
	return cfg.RPCURL
}
