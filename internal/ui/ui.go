// Package ui renders terminal output for dotmirror commands.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"})
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
	keyStyle    = lipgloss.NewStyle().Bold(true)
)

func init() {
	ConfigureFor(os.Stdout)
}

// ConfigureFor picks the colour profile for output written to w: the
// environment's profile on a terminal (NO_COLOR respected), plain ASCII
// otherwise.
func ConfigureFor(w io.Writer) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string { return passStyle.Render(s) }
func RenderWarn(s string) string { return warnStyle.Render(s) }
func RenderFail(s string) string { return failStyle.Render(s) }
func RenderMuted(s string) string { return mutedStyle.Render(s) }
func RenderBold(s string) string { return boldStyle.Render(s) }

// KeyValues writes aligned "key: value" rows.
func KeyValues(w io.Writer, rows [][2]string) {
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row[0]))
	}
	for _, row := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(row[0]))
		fmt.Fprintf(w, "%s:%s %s\n", keyStyle.Render(row[0]), pad, row[1])
	}
}

// Plural returns "1 target", "2 targets".
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
