package repl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type styles struct {
	header  lipgloss.Style
	current lipgloss.Style
	entry   lipgloss.Style
	muted   lipgloss.Style
}

// newStyles binds the palette to w so colors are dropped when w is not a
// terminal.
func newStyles(w io.Writer) styles {
	re := lipgloss.NewRenderer(w)
	return styles{
		header:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		current: re.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		entry:   re.NewStyle().Foreground(lipgloss.Color("252")),
		muted:   re.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// HistoryCommand lists every entry with the cursor marked
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "Show the edit history" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.sessionMgr.Snapshot()
	if snap.IsEmpty() {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	st := newStyles(r.out)
	fmt.Fprintln(r.out, st.header.Render(fmt.Sprintf("History (%d entries)", len(snap.Entries))))

	for i, a := range snap.Entries {
		line := fmt.Sprintf("[%d] %-32s %-10s %8s",
			i+1, truncate(a.Name(), 32), a.MimeType(), humanize.Bytes(uint64(a.Size())))
		switch {
		case i == snap.Cursor:
			fmt.Fprintln(r.out, st.current.Render("> "+line))
		case i > snap.Cursor:
			fmt.Fprintln(r.out, st.muted.Render("  "+line+"  (redo)"))
		default:
			fmt.Fprintln(r.out, st.entry.Render("  "+line))
		}
	}
	return nil
}

// CostCommand displays the estimated spend of this run
type CostCommand struct{}

func (c *CostCommand) Name() string        { return "cost" }
func (c *CostCommand) Aliases() []string   { return []string{"$"} }
func (c *CostCommand) Description() string { return "Show the estimated AI spend of this run" }
func (c *CostCommand) Usage() string       { return "cost" }

func (c *CostCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	charges := r.ledger.Charges()
	if len(charges) == 0 {
		fmt.Fprintln(r.out, "No costs recorded yet.")
		return nil
	}

	st := newStyles(r.out)
	fmt.Fprintln(r.out, st.header.Render(fmt.Sprintf("%-20s  %-32s  %s", "Operation", "Model", "Cost")))
	fmt.Fprintln(r.out, strings.Repeat("-", 64))
	for _, ch := range charges {
		fmt.Fprintf(r.out, "%-20s  %-32s  $%.4f\n", ch.Operation, ch.Model, ch.Amount)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 64))

	total := r.ledger.Total()
	fmt.Fprintf(r.out, "Total: $%.4f %s (%d call(s))\n", total.Total, total.Currency, len(charges))
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	st := newStyles(r.out)
	fmt.Fprintln(r.out, st.header.Render("Available commands:"))
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintln(r.out, st.muted.Render("                        Usage: "+cmd.Usage()))
	}

	return nil
}
