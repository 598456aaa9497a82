package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/spf13/cobra"
)

var (
	createTitle       string
	createDescription string
	createTarget      string
	createDeadline    string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a campaign owned by the connected account",
	Long: `Start a campaign. All four fields are required; nothing is sent until
they validate. The deadline is a date (2026-12-31), a date and time
(2026-12-31T18:00), RFC 3339, or a span from now (30d, 36h).

  w3fund create --title "Community garden" --description "Raised beds" \
    --target 2.5 --deadline 30d`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		req := campaign.CreateRequest{
			Title:       createTitle,
			Description: createDescription,
			Target:      createTarget,
		}
		if strings.TrimSpace(createDeadline) != "" {
			d, err := parseDeadline(createDeadline, now())
			if err != nil {
				return err
			}
			req.Deadline = d
		}

		w := newWriter()
		// Validate before touching the wallet so a bad form never prompts.
		if _, _, err := w.Validate(req); err != nil {
			return err
		}

		wh, err := writeHandle(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Meta("Submitting createCampaign from "+wh.From().Hex()+"…"))

		res, err := w.CreateCampaign(cmd.Context(), wh, req)
		if res != nil && res.Submission.TxHash != "" {
			fmt.Fprintln(out, txLine(res.Submission.TxHash))
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Campaign #%d created in block %d.", res.ExpectedID, res.Receipt.BlockNumber)))
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("View it with: w3fund campaign %d", res.ExpectedID)))
		return nil
	},
}

var donateCmd = &cobra.Command{
	Use:   "donate <id> <amount>",
	Short: "Donate ETH to a campaign",
	Long: `Donate to a campaign from the connected account. The amount is in
ETH, e.g. 0.25. A donation identical to one still awaiting confirmation is
refused; see "w3fund pending".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		wh, err := writeHandle(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("Donating %s ETH to #%d from %s…", args[1], id, wh.From().Hex())))

		conf, err := newWriter().Donate(cmd.Context(), wh, id, args[1])
		if conf != nil && conf.Submission.TxHash != "" {
			fmt.Fprintln(out, txLine(conf.Submission.TxHash))
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Donated %s ETH to #%d.", conf.Submission.Amount, id)))

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		if c, err := conf.Refresh(ctx); err == nil {
			fmt.Fprintln(out, ui.CampaignDetail(c, now()))
		} else {
			logger.Warn().Err(err).Msg("refreshing campaign")
		}
		return nil
	},
}

var deadlineLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// parseDeadline accepts an absolute date in local time or a span from now.
// Plain dates mean the end of that day.
func parseDeadline(s string, from time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && days > 0 {
			return from.Add(time.Duration(days) * 24 * time.Hour), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return from.Add(d), nil
	}
	for _, layout := range deadlineLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("deadline %q: use a date like 2026-12-31 or a span like 30d", s)
}

func init() {
	createCmd.Flags().StringVar(&createTitle, "title", "", "campaign title")
	createCmd.Flags().StringVar(&createDescription, "description", "", "campaign description")
	createCmd.Flags().StringVar(&createTarget, "target", "", "target in ETH, e.g. 2.5")
	createCmd.Flags().StringVar(&createDeadline, "deadline", "", "deadline date or span from now")
}
