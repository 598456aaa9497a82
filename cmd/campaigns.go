package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/chain"
	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/Mohsinsiddi/w3fund/internal/export"
	"github.com/Mohsinsiddi/w3fund/internal/price"
	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	campaignsMine bool
	campaignsLive bool
	donationsXLSX string
	campaignFiat  string
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List campaigns",
	Long: `List every campaign on the contract. When a wallet is connected the
campaigns it owns are listed separately.

  w3fund campaigns          # all, plus yours when connected
  w3fund campaigns --mine   # only yours
  w3fund campaigns --live   # refreshing board (m toggles mine/all)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if campaignsLive {
			return runBoard(cmd)
		}

		ctx, cancel := readTimeout(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		s := openSession(cmd).restore(ctx)
		owner := ""
		if s.IsConnected() {
			owner = s.Address.Hex()
		}
		if campaignsMine && owner == "" {
			return fmt.Errorf("--mine needs a connected wallet: run w3fund connect")
		}

		h, err := readHandle()
		if err != nil {
			return err
		}
		repo := newRepository()

		var all, mine []campaign.Campaign
		g, gctx := errgroup.WithContext(ctx)
		if !campaignsMine {
			g.Go(func() error {
				var err error
				all, err = repo.ListAll(gctx, h)
				return err
			})
		}
		if owner != "" {
			g.Go(func() error {
				var err error
				mine, err = repo.ListForOwner(gctx, h, owner)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		t := now()
		if !campaignsMine {
			fmt.Fprintln(out, ui.StyleTitle.Render("All campaigns"))
			fmt.Fprintln(out, ui.CampaignTable(all, owner, t))
		}
		if owner != "" {
			fmt.Fprintln(out, ui.StyleTitle.Render("My campaigns"))
			fmt.Fprintln(out, ui.CampaignTable(mine, owner, t))
		}
		return nil
	},
}

func runBoard(cmd *cobra.Command) error {
	ws := openSession(cmd)
	h, err := readHandle()
	if err != nil {
		return err
	}
	repo := newRepository()
	fetch := func(ctx context.Context) (ui.BoardSnapshot, error) {
		ctx, cancel := context.WithTimeout(ctx, config.RPCReadTimeout)
		defer cancel()
		s := ws.restore(ctx)
		all, err := repo.ListAll(ctx, h)
		if err != nil {
			return ui.BoardSnapshot{Session: s}, err
		}
		return ui.BoardSnapshot{Session: s, Campaigns: all}, nil
	}
	_, err = ui.NewDashboard(cmd.Context(), config.WatchInterval, fetch).Run()
	return err
}

var campaignCmd = &cobra.Command{
	Use:   "campaign <id>",
	Short: "Show one campaign and its donors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := readTimeout(cmd)
		defer cancel()

		h, err := readHandle()
		if err != nil {
			return err
		}
		repo := newRepository()

		var (
			c         campaign.Campaign
			donations []campaign.Donation
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			c, err = repo.Get(gctx, h, id)
			return err
		})
		g.Go(func() error {
			var err error
			donations, err = repo.DonationsFor(gctx, h, id)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.CampaignDetail(c, now()))
		if campaignFiat != "" {
			if pairs, err := fiatValues(ctx, c); err != nil {
				logger.Warn().Err(err).Msg("fetching price")
				fmt.Fprintln(out, ui.Hint("no "+strings.ToUpper(campaignFiat)+" price available"))
			} else {
				fmt.Fprintln(out, ui.KeyValueBlock("In "+strings.ToUpper(campaignFiat), pairs))
			}
		}
		fmt.Fprintln(out, ui.DonationsTable(donations))
		return nil
	},
}

// fiatValues quotes the campaign's target and collected amounts. Networks
// missing from the table are assumed to be ETH-denominated.
func fiatValues(ctx context.Context, c campaign.Campaign) ([][2]string, error) {
	symbol := "ETH"
	if n, err := chain.NetworkByID(cfg.ChainID); err == nil {
		symbol = n.Currency
	}
	q := newQuoter(campaignFiat)
	p, err := q.Price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	target, err := price.Value(c.Target, p)
	if err != nil {
		return nil, err
	}
	collected, err := price.Value(c.AmountCollected, p)
	if err != nil {
		return nil, err
	}
	return [][2]string{
		{"1 " + symbol, price.Format(p, q.Fiat())},
		{"Target", price.Format(target, q.Fiat())},
		{"Collected", price.Format(collected, q.Fiat())},
	}, nil
}

var donationsCmd = &cobra.Command{
	Use:   "donations <id>",
	Short: "List a campaign's donations",
	Long: `List a campaign's donations in the order the contract recorded them.

  w3fund donations 3
  w3fund donations 3 --xlsx ledger.xlsx   # also write a spreadsheet`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := readTimeout(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		h, err := readHandle()
		if err != nil {
			return err
		}
		repo := newRepository()
		donations, err := repo.DonationsFor(ctx, h, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.DonationsTable(donations))

		if donationsXLSX == "" {
			return nil
		}
		c, err := repo.Get(ctx, h, id)
		if err != nil {
			return err
		}
		if err := export.Donations(donationsXLSX, c, donations, now()); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success("Ledger written to "+donationsXLSX))
		return nil
	},
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("campaign id must be a non-negative integer, got %q", s)
	}
	return id, nil
}

func init() {
	campaignsCmd.Flags().BoolVar(&campaignsMine, "mine", false, "only campaigns owned by the connected account")
	campaignsCmd.Flags().BoolVar(&campaignsLive, "live", false, "keep refreshing in a full-screen board")
	campaignsCmd.MarkFlagsMutuallyExclusive("mine", "live")
	campaignCmd.Flags().StringVar(&campaignFiat, "fiat", "", "also show amounts in this currency, e.g. usd")
	donationsCmd.Flags().StringVar(&donationsXLSX, "xlsx", "", "also write the ledger to this .xlsx file")
}
