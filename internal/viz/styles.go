package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Theme defines the colors used in terminal output.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	// Series colors the lines of a fit plot: truth, band, median, data.
	Series [4]asciigraph.AnsiColor
}

var (
	ThemeDefault = Theme{
		Name:    "default",
		Primary: lipgloss.Color("#00ccff"),
		Accent:  lipgloss.Color("#ffcc00"),
		Muted:   lipgloss.Color("#666688"),
		Success: lipgloss.Color("#00ff88"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff4444"),
		Series:  [4]asciigraph.AnsiColor{asciigraph.Green, asciigraph.DarkGray, asciigraph.Blue, asciigraph.Red},
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Primary: lipgloss.Color("#ffffff"),
		Accent:  lipgloss.Color("#0088ff"),
		Muted:   lipgloss.Color("#888888"),
		Success: lipgloss.Color("#ffffff"),
		Warning: lipgloss.Color("#ffffff"),
		Error:   lipgloss.Color("#ffffff"),
		Series:  [4]asciigraph.AnsiColor{asciigraph.Default, asciigraph.Default, asciigraph.Default, asciigraph.Default},
	}

	Themes = []Theme{ThemeDefault, ThemeMinimal}
)

var theme = ThemeDefault

// SetTheme selects a theme by name.
func SetTheme(name string) error {
	for _, t := range Themes {
		if t.Name == name {
			theme = t
			return nil
		}
	}
	return fmt.Errorf("viz: unknown theme %q", name)
}

func Title(s string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Primary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(theme.Muted).
		Render(s)
}

func Label(s string) string { return lipgloss.NewStyle().Foreground(theme.Muted).Render(s) }
func Value(s string) string { return lipgloss.NewStyle().Bold(true).Foreground(theme.Accent).Render(s) }
func OK(s string) string    { return lipgloss.NewStyle().Bold(true).Foreground(theme.Success).Render(s) }
func Warn(s string) string  { return lipgloss.NewStyle().Bold(true).Foreground(theme.Warning).Render(s) }
func Fail(s string) string  { return lipgloss.NewStyle().Bold(true).Foreground(theme.Error).Render(s) }

// KeyValue renders "key: value" lines with aligned keys.
func KeyValue(pairs ...[2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	key := lipgloss.NewStyle().Foreground(theme.Muted).Width(width + 2)
	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(key.Render(p[0]+":") + p[1] + "\n")
	}
	return b.String()
}

// Warnings renders a bulleted warning list, or nothing when empty.
func Warnings(ws []string) string {
	if len(ws) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(Warn("warnings") + "\n")
	for _, w := range ws {
		b.WriteString("  ! " + w + "\n")
	}
	return b.String()
}

// Sparkline renders values as a row of block characters, sampled down to
// width. It is used for chain traces.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := max(len(values)/width, 1)
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / rng * float64(len(chars)-1))
		b.WriteRune(chars[min(max(idx, 0), len(chars)-1)])
	}
	return b.String()
}

// Separator is a muted horizontal rule.
func Separator(width int) string {
	mid := width / 2
	return lipgloss.NewStyle().Foreground(theme.Muted).
		Render(strings.Repeat("─", max(mid-3, 0)) + " ◆ " + strings.Repeat("─", max(width-mid-3, 0)))
}
