package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/session"
)

// CampaignTable renders campaigns one per row. owner, when set, marks the
// rows that belong to it.
func CampaignTable(campaigns []campaign.Campaign, owner string, now time.Time) string {
	if len(campaigns) == 0 {
		return Meta("No campaigns yet.") + "\n"
	}
	t := NewTable([]Column{
		{Title: "ID", Width: 4},
		{Title: "Title", Width: 28},
		{Title: "Owner", Width: 13},
		{Title: "Raised", Width: 22, Right: true},
		{Title: "Progress", Width: 8, Right: true},
		{Title: "Left", Width: 9},
	})
	for _, c := range campaigns {
		mine := c.OwnedBy(owner)
		ownerCell := TruncateAddr(c.Owner)
		if mine {
			ownerCell = "you"
		}
		style := RowPlain
		switch {
		case c.Expired(now):
			style = RowDim
		case mine:
			style = RowMine
		}
		t.AddStyledRow(Row{
			strconv.Itoa(c.ID),
			c.Title,
			ownerCell,
			c.AmountCollected + " / " + c.Target,
			fmt.Sprintf("%.1f%%", c.Progress()),
			TimeLeft(c, now),
		}, style)
	}
	return t.Render()
}

// TimeLeft describes the time to a campaign's deadline.
func TimeLeft(c campaign.Campaign, now time.Time) string {
	if c.Expired(now) {
		return "ended"
	}
	days := c.DaysLeft(now)
	if days == 0 {
		return "<1 day"
	}
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// CampaignDetail renders one campaign with a progress bar.
func CampaignDetail(c campaign.Campaign, now time.Time) string {
	deadline := time.Unix(c.Deadline, 0).Local().Format("2006-01-02 15:04")
	pairs := [][2]string{
		{"ID", strconv.Itoa(c.ID)},
		{"Owner", c.Owner},
		{"Description", c.Description},
		{"Target", c.Target + " ETH"},
		{"Collected", c.AmountCollected + " ETH"},
		{"Progress", ProgressBar(c.Progress(), 20) + fmt.Sprintf(" %.1f%%", c.Progress())},
		{"Deadline", deadline + " (" + TimeLeft(c, now) + ")"},
	}
	return KeyValueBlock(c.Title, pairs)
}

// DonationsTable renders a donor ledger in chain order.
func DonationsTable(donations []campaign.Donation) string {
	if len(donations) == 0 {
		return Meta("No donations yet.") + "\n"
	}
	t := NewTable([]Column{
		{Title: "#", Width: 4},
		{Title: "Donor", Width: 42},
		{Title: "Amount (ETH)", Width: 24, Right: true},
	})
	for i, d := range donations {
		t.AddRow(Row{strconv.Itoa(i + 1), d.Donor, d.Amount})
	}
	return t.Render()
}

// SubmissionTable renders the write ledger, newest last.
func SubmissionTable(subs []campaign.Submission) string {
	if len(subs) == 0 {
		return Meta("Nothing submitted.") + "\n"
	}
	t := NewTable([]Column{
		{Title: "ID", Width: 8},
		{Title: "Kind", Width: 6},
		{Title: "Campaign", Width: 8},
		{Title: "Amount", Width: 12},
		{Title: "State", Width: 9},
		{Title: "Tx", Width: 13},
		{Title: "Submitted", Width: 16},
	})
	for _, s := range subs {
		t.AddRow(Row{
			s.ID.String()[:8],
			string(s.Kind),
			strconv.Itoa(s.CampaignID),
			s.Amount,
			string(s.State),
			TruncateAddr(s.TxHash),
			s.SubmittedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return t.Render()
}

// SessionLine summarizes a wallet session in one line.
func SessionLine(s session.Session) string {
	switch s.State {
	case session.Connected:
		return Success("connected as ") + Addr(s.Address.Hex())
	case session.Connecting:
		return Warn("connecting…")
	default:
		return Meta("○ disconnected")
	}
}

// StateBadge colors a submission state.
func StateBadge(state campaign.SubmissionState) string {
	switch state {
	case campaign.StateConfirmed:
		return StyleSuccess.Render(string(state))
	case campaign.StateReverted:
		return StyleError.Render(string(state))
	default:
		return StyleWarning.Render(string(state))
	}
}
