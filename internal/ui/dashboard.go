package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// BoardSnapshot is one refresh of the live campaign board.
type BoardSnapshot struct {
	Session   session.Session
	Campaigns []campaign.Campaign
}

// BoardFetcher loads a snapshot. It is called once per tick.
type BoardFetcher func(ctx context.Context) (BoardSnapshot, error)

// dashboardModel is the Bubble Tea model for the live campaign board.
type dashboardModel struct {
	ctx        context.Context
	snap       BoardSnapshot
	loaded     bool
	lastUpdate time.Time
	interval   time.Duration
	quitting   bool
	mineOnly   bool
	fetcher    BoardFetcher
	err        string
	now        func() time.Time
}

type tickMsg time.Time
type boardFetchedMsg BoardSnapshot
type boardErrorMsg string

// NewDashboard creates a Bubble Tea program that refreshes the campaign
// board every interval until ctx ends or the user quits.
func NewDashboard(ctx context.Context, interval time.Duration, fetcher BoardFetcher) *tea.Program {
	return tea.NewProgram(newDashboardModel(ctx, interval, fetcher), tea.WithContext(ctx))
}

func newDashboardModel(ctx context.Context, interval time.Duration, fetcher BoardFetcher) dashboardModel {
	return dashboardModel{ctx: ctx, interval: interval, fetcher: fetcher, now: time.Now}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tick(m.interval))
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "m":
			m.mineOnly = !m.mineOnly
		case "r":
			return m, m.fetchCmd()
		}

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tick(m.interval))

	case boardFetchedMsg:
		m.snap = BoardSnapshot(msg)
		m.loaded = true
		m.lastUpdate = m.now()
		m.err = ""

	case boardErrorMsg:
		m.err = string(msg)
	}

	return m, nil
}

func (m dashboardModel) visible() []campaign.Campaign {
	if !m.mineOnly {
		return m.snap.Campaigns
	}
	owner := ""
	if m.snap.Session.IsConnected() {
		owner = m.snap.Session.Address.Hex()
	}
	mine := []campaign.Campaign{}
	for _, c := range m.snap.Campaigns {
		if c.OwnedBy(owner) {
			mine = append(mine, c)
		}
	}
	return mine
}

func (m dashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	title := "Campaigns"
	if m.mineOnly {
		title = "My campaigns"
	}
	sb.WriteString(StyleTitle.Render(title) + "\n")
	sb.WriteString(SessionLine(m.snap.Session) + "\n")
	sb.WriteString(StyleMeta.Render(fmt.Sprintf("Updated: %s · m mine/all · r refresh · q quit\n\n", m.lastUpdate.Format("15:04:05"))))

	if m.err != "" {
		sb.WriteString(Err(m.err) + "\n")
	}

	if !m.loaded {
		sb.WriteString(StyleMeta.Render("Loading...") + "\n")
	} else {
		owner := ""
		if m.snap.Session.IsConnected() {
			owner = m.snap.Session.Address.Hex()
		}
		sb.WriteString(CampaignTable(m.visible(), owner, m.now()))
	}

	return sb.String()
}

func (m dashboardModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetcher(m.ctx)
		if err != nil {
			return boardErrorMsg(err.Error())
		}
		return boardFetchedMsg(snap)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
