package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/spf13/cobra"
)

var pendingAll bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List writes whose outcome is not known yet",
	Long: `List campaigns and donations that were broadcast but not seen confirmed,
for example because the wait timed out. While one is listed an identical
request is refused.

  w3fund pending                 # unresolved only
  w3fund pending --all           # the whole ledger
  w3fund pending resume 1b4e28ba # wait for it again
  w3fund pending forget 1b4e28ba # drop it from the ledger`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := newWriter()
		subs, err := w.Pending()
		if pendingAll {
			subs, err = w.History()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.SubmissionTable(subs))
		return nil
	},
}

var pendingResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Wait again for a pending write",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := readHandle()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		spin := ui.NewSpinner(cmd.ErrOrStderr(), "Waiting for confirmation…")
		spin.Start()
		sub, receipt, err := newWriter().Resume(cmd.Context(), h, args[0])
		spin.Stop()
		if err != nil {
			if sub.TxHash != "" {
				fmt.Fprintln(out, ui.StateBadge(sub.State)+" "+txLine(sub.TxHash))
			}
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s %s confirmed in block %d.", sub.Kind, sub.ID.String()[:8], receipt.BlockNumber)))
		return nil
	},
}

var pendingForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Drop a write from the ledger",
	Long: `Drop a write from the ledger so an identical request can be sent again.
Only do this once you know the transaction will never land.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := newWriter().Forget(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Forgot %s %s (%s).", sub.Kind, sub.ID.String()[:8], sub.State)))
		return nil
	},
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "show resolved writes too")
	pendingCmd.AddCommand(pendingResumeCmd, pendingForgetCmd)
}
