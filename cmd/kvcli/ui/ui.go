// Package ui holds kvcli's terminal styling: a muted palette rendered
// through lipgloss, downgraded to plain ASCII when the output isn't a
// color-capable terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	AccentStyle = lipgloss.NewStyle().Foreground(purple)
	GoodStyle   = lipgloss.NewStyle().Foreground(green)
	ErrorStyle  = lipgloss.NewStyle().Foreground(red)
	WarnStyle   = lipgloss.NewStyle().Foreground(yellow)
	MutedStyle  = lipgloss.NewStyle().Foreground(dim)
	LabelStyle  = lipgloss.NewStyle().Foreground(dim)
)

// Configure sets lipgloss's color profile from the terminal's real
// capabilities unless NO_COLOR or CI forces ASCII output.
func Configure() {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("CI") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

func Accent(s string) string { return AccentStyle.Render(s) }
func Good(s string) string   { return GoodStyle.Render(s) }
func Warn(s string) string   { return WarnStyle.Render(s) }

func ErrorMsg(format string, a ...any) string {
	return ErrorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func GoodMsg(format string, a ...any) string {
	return GoodStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

// Pair is one key-value row for KeyValues.
type Pair struct {
	Key   string
	Value string
}

// KeyValues renders aligned "key:  value" lines with a trailing newline.
func KeyValues(pairs ...Pair) string {
	maxLen := 0
	for _, p := range pairs {
		if len(p.Key) > maxLen {
			maxLen = len(p.Key)
		}
	}
	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", maxLen+1, p.Key+":")
		sb.WriteString(LabelStyle.Render(label) + " " + p.Value + "\n")
	}
	return sb.String()
}

// Table renders a rounded-border styled table.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
