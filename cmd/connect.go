package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/Mohsinsiddi/w3fund/internal/session"
	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/spf13/cobra"
)

var (
	connectCheck  bool
	connectWallet string
	watchInterval time.Duration
)

// connectTimeout bounds how long the approval prompt waits.
const connectTimeout = 5 * time.Minute

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorize a wallet for w3fund",
	Long: `Ask the wallet to expose an account to w3fund. The authorization is
remembered, so later commands reconnect without asking.

  w3fund connect              # pick a wallet interactively
  w3fund connect --wallet bob # authorize bob and select it
  w3fund connect --check      # only report an existing authorization`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ws := openSession(cmd)

		if connectCheck {
			s, err := ws.session.CheckExistingAuthorization(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.SessionLine(s))
			return nil
		}

		if connectWallet != "" {
			if err := ws.provider.Switch(connectWallet); err != nil {
				return err
			}
			s, err := ws.session.CheckExistingAuthorization(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.SessionLine(s))
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()
		s, err := ws.session.RequestConnection(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.SessionLine(s))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the wallet session and node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := readTimeout(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		s := openSession(cmd).restore(ctx)
		pairs := [][2]string{
			{"Session", s.State.String()},
		}
		if s.IsConnected() {
			pairs = append(pairs, [2]string{"Account", s.Address.Hex()})
		}
		pairs = append(pairs,
			[2]string{"Node", cfg.RPCURL},
			[2]string{"Contract", cfg.ContractAddress},
		)

		h, err := readHandle()
		if err != nil {
			return err
		}
		if latency, block, err := h.Client().Ping(ctx); err != nil {
			pairs = append(pairs, [2]string{"Node status", "unreachable"})
		} else {
			pairs = append(pairs, [2]string{"Node status", fmt.Sprintf("block %d (%s)", block, latency.Round(time.Millisecond))})
			if id, err := h.Client().ChainID(ctx); err == nil {
				name := "unknown"
				if n, err := chain.NetworkByID(id.Int64()); err == nil {
					name = n.Name
				}
				pairs = append(pairs, [2]string{"Network", fmt.Sprintf("%s (%s)", name, id)})
			}
			if n, err := h.NumberOfCampaigns(ctx); err == nil {
				pairs = append(pairs, [2]string{"Campaigns", n.String()})
			}
		}
		fmt.Fprintln(out, ui.KeyValueBlock("w3fund", pairs))
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget every wallet authorization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := openSession(cmd)
		if err := ws.provider.Revoke(); err != nil {
			return err
		}
		s := ws.session.Disconnect()
		fmt.Fprintln(cmd.OutOrStdout(), ui.SessionLine(s))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow wallet session changes",
	Long: `Print a line whenever the connected account changes, for example
after "w3fund wallet use" or "w3fund wallet lock" in another terminal.
Ctrl-C stops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return fmt.Errorf("--interval must be positive, got %s", watchInterval)
		}
		out := cmd.OutOrStdout()
		ws := openSession(cmd)

		s := ws.restore(cmd.Context())
		stamp := func(s session.Session) {
			fmt.Fprintf(out, "%s  %s\n", ui.Meta(now().Format("15:04:05")), ui.SessionLine(s))
		}
		stamp(s)
		if !s.IsConnected() {
			fmt.Fprintln(out, ui.Hint("not connected; run w3fund connect to follow an account"))
		}

		// Only the printer goroutine writes to out from here on.
		updates, cancel := ws.session.Subscribe()
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for s := range updates {
				stamp(s)
			}
		}()

		err := ws.session.Watch(cmd.Context(), watchInterval)
		cancel()
		<-printed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectCheck, "check", false, "report an existing authorization without prompting")
	connectCmd.Flags().StringVar(&connectWallet, "wallet", "", "authorize and select this wallet")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", config.WatchInterval, "how often to re-check the wallet")
}
