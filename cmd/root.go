package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/Mohsinsiddi/w3fund/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3fund/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir   string
	cfg      *config.Config
	logger   = zerolog.Nop()
	logLevel string
	rpcFlag  string
	yesFlag  bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3fund",
	Short: "Browse, start and fund crowdfunding campaigns on an EVM chain",
	Long: `w3fund talks to a CrowdFunding contract through any JSON-RPC node.

  Reading campaigns and donations needs no wallet. Creating a campaign or
  donating needs a connected wallet: add one with "w3fund wallet add" and
  authorize it with "w3fund connect".

Settings live in ~/.w3fund/config.toml and can be overridden with
W3FUND_<KEY> environment variables (see "w3fund config show").`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config (skip for commands that don't need it).
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rpcFlag != "" {
			if err := cfg.Set(config.KeyRPCURL, rpcFlag); err != nil {
				return fmt.Errorf("--rpc: %w", err)
			}
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger, err = logging.New(cmd.ErrOrStderr(), level, isTerminal(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		return nil
	},
}

// Execute runs the root command. Ctrl-C cancels whatever is in flight.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, explain(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: $W3FUND_CONFIG_DIR or ~/.w3fund)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&rpcFlag, "rpc", "", "JSON-RPC endpoint for this invocation")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "approve wallet prompts without asking")

	// Register all sub-commands.
	rootCmd.AddCommand(
		connectCmd,
		statusCmd,
		disconnectCmd,
		watchCmd,
		walletCmd,
		campaignsCmd,
		campaignCmd,
		donationsCmd,
		createCmd,
		donateCmd,
		pendingCmd,
		configCmd,
		convertCmd,
	)
}
