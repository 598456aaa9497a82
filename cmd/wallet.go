package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var walletKeyFlag string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the local wallet",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Import a private key as a wallet",
	Long: `Import a private key. The key goes to the OS keychain (or an encrypted
file under the config directory when no keychain is reachable); only the
name and address are written to wallets.json.

Without --key the key is read from the terminal without echo, or from the
first line of stdin when stdin is not a terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		key := walletKeyFlag
		if key == "" {
			var err error
			if key, err = readSecret(cmd, "Private key"); err != nil {
				return err
			}
		}

		mgr := newWalletManager()
		w, err := mgr.AddWithKey(args[0], key)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Wallet %q added: %s", w.Name, ui.Addr(w.Address))))
		fmt.Fprintln(out, ui.Hint("Authorize it with: w3fund connect --wallet "+w.Name))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ws := openSession(cmd)
		wallets, err := ws.provider.Manager().List()
		if err != nil {
			return err
		}
		if len(wallets) == 0 {
			fmt.Fprintln(out, ui.Info("No wallets configured yet."))
			fmt.Fprintln(out, ui.Hint("Add one with: w3fund wallet add <name>"))
			return nil
		}

		authorized, _ := ws.provider.Accounts(cmd.Context())
		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 42},
			{Title: "Default", Width: 8},
			{Title: "Connected", Width: 10},
		})
		for _, w := range wallets {
			def, conn := "", ""
			if w.IsDefault {
				def = "✓"
			}
			for i, a := range authorized {
				if a == w.Addr() {
					conn = "yes"
					if i == 0 {
						conn = "selected"
					}
				}
			}
			t.AddRow(ui.Row{w.Name, w.Address, def, conn})
		}
		fmt.Fprintln(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d wallet(s) configured", len(wallets))))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a wallet the default and selected account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ws := openSession(cmd)
		if err := ws.provider.Manager().SetDefault(name); err != nil {
			return err
		}
		if err := ws.provider.Switch(name); err != nil {
			return err
		}
		cfg.DefaultWallet = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Now using %q.", name)))
		return nil
	},
}

var walletLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Hide every account until the next connect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openSession(cmd).provider.Lock(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Wallet locked."))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()
		if !yesFlag && !ui.ConfirmDanger(cmd.InOrStdin(), out, fmt.Sprintf("Remove wallet %q and delete its key?", name)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		if err := openSession(cmd).provider.RemoveWallet(name); err != nil {
			return err
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

// readSecret reads a line without echo from a terminal, or plainly from a
// pipe.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
		}
		return "", fmt.Errorf("%s is required", strings.ToLower(prompt))
	}
	return line, nil
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "hex private key (visible in shell history; prefer the prompt)")
	walletCmd.AddCommand(walletAddCmd, walletListCmd, walletUseCmd, walletLockCmd, walletRemoveCmd)
}
