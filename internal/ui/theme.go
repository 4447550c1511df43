package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme bundles palette + symbols + box borders.
// All UI helpers pull from `current`.
type Theme struct {
	Name                                     string
	Title, Muted, Accent, Success, Error     lipgloss.Style
	Pending, Selected, Done                  lipgloss.Style
	BoxUnchecked, BoxChecked, BoxSyncing     string
	CornerTL, CornerTR, CornerBL, CornerBR   string
	H, V                                     string
	SymDone, SymUnchecked, SymCross, SymInfo string
}

var current = classic()

func classic() Theme {
	return Theme{
		Name:     "classic",
		Title:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Faint(true),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Done:     lipgloss.NewStyle().Faint(true).Strikethrough(true),

		BoxUnchecked: "☐", BoxChecked: "☑", BoxSyncing: "◌",
		CornerTL: "┌", CornerTR: "┐", CornerBL: "└", CornerBR: "┘",
		H: "─", V: "│",
		SymDone: "✔", SymUnchecked: "•", SymCross: "✖", SymInfo: "›",
	}
}

// SetTheme switches the palette. Unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(name) {
	case "neon":
		t := classic()
		t.Name = "neon"
		t.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")) // bright magenta
		t.Accent = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
		t.Pending = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
		t.BoxUnchecked, t.BoxChecked = "◻", "◼"
		t.CornerTL, t.CornerTR, t.CornerBL, t.CornerBR = "╭", "╮", "╰", "╯"
		current = t
	case "mono":
		SetColorMode("never")
		plain := lipgloss.NewStyle()
		current = Theme{
			Name:  "mono",
			Title: plain, Muted: plain, Accent: plain, Success: plain, Error: plain,
			Pending: plain, Selected: plain.Reverse(true), Done: plain,
			BoxUnchecked: "[ ]", BoxChecked: "[x]", BoxSyncing: "[~]",
			CornerTL: "+", CornerTR: "+", CornerBL: "+", CornerBR: "+",
			H: "-", V: "|",
			SymDone: "x", SymUnchecked: "-", SymCross: "!", SymInfo: ">",
		}
	default:
		current = classic()
	}
}

// SetColorMode forces or disables colour. "auto" leaves lipgloss to
// detect the terminal.
func SetColorMode(mode string) {
	switch strings.ToLower(mode) {
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Current exposes what renderers need.
func Current() Theme { return current }
