package ui

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PickerItem is one entry shown in the interactive picker.
type PickerItem struct {
	Label    string // primary text (e.g. wallet name)
	SubLabel string // secondary text shown dimmed (e.g. address)
	Value    string // value returned on selection (may differ from Label)
}

// pickerModel is the Bubble Tea model for the interactive list picker.
type pickerModel struct {
	title    string
	items    []PickerItem
	cursor   int
	selected *PickerItem
	quitting bool
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter", " ":
			if len(m.items) > 0 {
				item := m.items[m.cursor]
				m.selected = &item
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.quitting || m.selected != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(StyleTitle.Render("  "+m.title) + "\n\n")

	for i, item := range m.items {
		prefix := "    "
		if i == m.cursor {
			prefix = "  ▸ "
		}

		line := prefix + StyleValue.Render(item.Label)
		if item.SubLabel != "" {
			line += "  " + StyleMeta.Render(item.SubLabel)
		}

		if i == m.cursor {
			sb.WriteString(StyleSelected.Render(line) + "\n")
		} else {
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(StyleMeta.Render("  [ ↑↓ / jk ] navigate   [ Enter ] connect   [ q ] reject") + "\n")
	return sb.String()
}

// confirmModel asks a yes/no question about a summary block.
type confirmModel struct {
	title    string
	summary  [][2]string
	answered bool
	yes      bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			m.answered, m.yes = true, true
			return m, tea.Quit
		case "n", "N", "q", "esc", "ctrl+c", "enter":
			m.answered = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		return ""
	}
	return "\n" + KeyValueBlock(m.title, m.summary) + "\n" +
		StyleWarning.Render("  Sign and send? [y/N]") + "\n"
}

// Approver asks the user in the terminal before a wallet connects or signs.
type Approver struct {
	in  io.Reader
	out io.Writer
}

// ApproverOption configures an Approver.
type ApproverOption func(*Approver)

// WithIO sets the terminal the approver talks to.
func WithIO(in io.Reader, out io.Writer) ApproverOption {
	return func(a *Approver) {
		a.in = in
		a.out = out
	}
}

// NewApprover creates an Approver on stdin/stderr.
func NewApprover(opts ...ApproverOption) *Approver {
	a := &Approver{in: os.Stdin, out: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ wallet.Approver = (*Approver)(nil)

// ApproveConnection lets the user pick which wallet to expose. Cancelling is
// a rejection.
func (a *Approver) ApproveConnection(ctx context.Context, candidates []*wallet.Wallet) (*wallet.Wallet, error) {
	if len(candidates) == 0 {
		return nil, wallet.ErrWalletNotFound
	}
	m := newConnectPicker(candidates)
	final, err := a.run(ctx, m)
	if err != nil {
		return nil, err
	}
	fm := final.(pickerModel)
	if fm.quitting || fm.selected == nil {
		return nil, wallet.ErrUserRejected
	}
	for _, w := range candidates {
		if w.Name == fm.selected.Value {
			return w, nil
		}
	}
	return nil, wallet.ErrWalletNotFound
}

// ApproveTransaction shows what tx will do and waits for y/N.
func (a *Approver) ApproveTransaction(ctx context.Context, w *wallet.Wallet, tx *types.Transaction) error {
	m := confirmModel{title: "Signature request", summary: DescribeTx(w, tx)}
	final, err := a.run(ctx, m)
	if err != nil {
		return err
	}
	if !final.(confirmModel).yes {
		return wallet.ErrUserRejected
	}
	return nil
}

func (a *Approver) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(a.in), tea.WithOutput(a.out))
	final, err := p.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	return final, nil
}

func newConnectPicker(candidates []*wallet.Wallet) pickerModel {
	items := make([]PickerItem, 0, len(candidates))
	cursor := 0
	for i, w := range candidates {
		sub := w.Address
		if w.IsDefault {
			sub += "  (default)"
			cursor = i
		}
		items = append(items, PickerItem{Label: w.Name, SubLabel: sub, Value: w.Name})
	}
	return pickerModel{title: "Connect a wallet to w3fund", items: items, cursor: cursor}
}

// DescribeTx summarizes a CrowdFunding transaction for review. Calls it
// cannot decode are shown by selector.
func DescribeTx(w *wallet.Wallet, tx *types.Transaction) [][2]string {
	pairs := [][2]string{{"Wallet", w.Name + " " + w.Address}}
	if to := tx.To(); to != nil {
		pairs = append(pairs, [2]string{"Contract", to.Hex()})
	}
	pairs = append(pairs, [2]string{"Value", units.FormatEther(tx.Value()) + " ETH"})

	data := tx.Data()
	parsed, err := contract.CrowdFundingABI()
	if len(data) >= 4 && err == nil {
		if method, err := parsed.MethodById(data[:4]); err == nil {
			pairs = append(pairs, [2]string{"Method", method.Name})
			if args, err := method.Inputs.Unpack(data[4:]); err == nil {
				for i, in := range method.Inputs {
					label := strings.TrimPrefix(in.Name, "_")
					pairs = append(pairs, [2]string{label, formatArg(label, args[i])})
				}
			}
		} else {
			pairs = append(pairs, [2]string{"Selector", fmt.Sprintf("0x%x", data[:4])})
		}
	}

	fee := new(big.Int).Mul(tx.GasFeeCap(), new(big.Int).SetUint64(tx.Gas()))
	pairs = append(pairs,
		[2]string{"Gas limit", fmt.Sprintf("%d", tx.Gas())},
		[2]string{"Max fee", units.FormatEther(fee) + " ETH"},
		[2]string{"Nonce", fmt.Sprintf("%d", tx.Nonce())},
	)
	return pairs
}

func formatArg(name string, v interface{}) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case *big.Int:
		switch {
		case name == "target":
			return units.FormatEther(x) + " ETH"
		case name == "deadline" && x.IsInt64():
			return time.Unix(x.Int64(), 0).UTC().Format(time.RFC3339)
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
