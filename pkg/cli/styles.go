package cli

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of terminal output.
type Theme struct {
	Primary lipgloss.Color // headers and borders
	Dim     lipgloss.Color // secondary text
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
	Dim    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim).Padding(0, 1),
	}
}

// truncate shortens s to at most width cells, ending it with "…" when cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	cur := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if cur+w > width-1 {
			return string(runes[:i]) + "…"
		}
		cur += w
	}
	return s
}
