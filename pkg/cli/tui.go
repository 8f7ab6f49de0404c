package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Warn    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
	Cell   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
	}
}

// PlainStyles renders without color or emphasis.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:  plain,
		Label:  plain,
		Border: plain,
		Help:   plain,
		Warn:   plain,
		Cell:   plain.Padding(0, 1),
	}
}

// Table renders rows under headers with a rounded border. Cells wider
// than maxWidth runes are truncated with an ellipsis; maxWidth <= 0
// disables truncation.
func (s Styles) Table(headers []string, rows [][]string, maxWidth int) string {
	if maxWidth > 1 {
		for _, row := range rows {
			for i, cell := range row {
				if lipgloss.Width(cell) > maxWidth {
					row[i] = truncateString(cell, maxWidth-1) + "…"
				}
			}
		}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Label.Padding(0, 1)
			}
			return s.Cell
		})
	return t.String()
}

// Section renders a titled block: the title line followed by body.
func (s Styles) Section(title, body string) string {
	return s.Title.Render(title) + "\n" + body
}

// Bar renders a [0, 1] ratio as a fixed-width bar.
func Bar(v float64, width int) string {
	v = min(max(v, 0), 1)
	n := int(v*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
