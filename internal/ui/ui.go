// Package ui renders CLI output. Styling is dropped automatically when
// stdout is not a terminal or NO_COLOR is set.
package ui

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	if !IsTerminal() || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when unknown.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

// Counts renders per-table counts as an aligned two-column list, largest
// first, skipping zero counts unless all is true.
func Counts(counts map[string]int, all bool) string {
	type entry struct {
		name string
		n    int
	}
	entries := make([]entry, 0, len(counts))
	width := 0
	for name, n := range counts {
		if n == 0 && !all {
			continue
		}
		entries = append(entries, entry{name, n})
		width = max(width, len(name))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].name < entries[j].name
	})

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "   %-*s %s\n", width, e.name, RenderAccent(fmt.Sprintf("%d", e.n)))
	}
	return b.String()
}
