package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors for the console.
type Theme struct {
	Name string

	Background string
	Surface    string
	SurfaceAlt string

	Border      string
	BorderFocus string

	Text    string
	Muted   string
	Faint   string
	Accent  string
	Success string
	Warning string
	Danger  string
	Info    string

	// StatusColors covers stream statuses, queue item statuses, cache
	// freshness and alert severities.
	StatusColors map[string]string
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		FaintText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Faint)),
		AccentText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		SuccessText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		WarningText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		DangerText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),

		Header: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Text)).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Muted)).
			Padding(0, 1),

		Logo: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Warning)).
			Bold(true),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),

		PanelTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true),

		statusColors: t.StatusColors,
		background:   t.Background,
		muted:        t.Muted,
	}
}

// Styles contains pre-built Lipgloss styles for the theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style

	Header     lipgloss.Style
	Footer     lipgloss.Style
	Logo       lipgloss.Style
	Panel      lipgloss.Style
	PanelTitle lipgloss.Style

	statusColors map[string]string
	background   string
	muted        string
}

// StatusStyle returns a badge style for the given status.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	color := s.statusColors[status]
	if color == "" {
		color = s.muted
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.background)).
		Background(lipgloss.Color(color)).
		Padding(0, 1)
}

var themes = map[string]Theme{
	"Savanna": savannaTheme(),
	"Dusk":    duskTheme(),
	"Slate":   slateTheme(),
}

var themeOrder = []string{"Savanna", "Dusk", "Slate"}

// GetTheme returns a theme by name, falling back to Savanna.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return savannaTheme()
}

// NextTheme returns the next theme name in the cycle.
func NextTheme(current string) string {
	for i, name := range themeOrder {
		if name == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// ThemeNames returns available theme names in cycle order.
func ThemeNames() []string {
	return themeOrder
}

func savannaTheme() Theme {
	// Warm earth tones: dry grass, ochre, acacia green.
	return Theme{
		Name: "Savanna",

		Background: "#1c1812",
		Surface:    "#27211a",
		SurfaceAlt: "#332b21",

		Border:      "#5a4a36",
		BorderFocus: "#d9a441",

		Text:    "#ede0c8",
		Muted:   "#a8977a",
		Faint:   "#7a6c57",
		Accent:  "#d9a441",
		Success: "#8fb36b",
		Warning: "#e0b050",
		Danger:  "#d0603c",
		Info:    "#7fb3a8",

		StatusColors: map[string]string{
			"connected":    "#8fb36b",
			"connecting":   "#7fb3a8",
			"reconnecting": "#e0b050",
			"disconnected": "#7a6c57",
			"failed":       "#d0603c",
			"pending":      "#a8977a",
			"fresh":        "#8fb36b",
			"stale":        "#e0b050",
			"pushed":       "#7fb3a8",
			"empty":        "#7a6c57",
			"low":          "#a8977a",
			"medium":       "#e0b050",
			"high":         "#d0603c",
			"critical":     "#e04a4a",
		},
	}
}

func duskTheme() Theme {
	// Evening sky over the plains: indigo, violet, last light.
	return Theme{
		Name: "Dusk",

		Background: "#15131f",
		Surface:    "#1e1b2c",
		SurfaceAlt: "#282439",

		Border:      "#443d5e",
		BorderFocus: "#b48ead",

		Text:    "#e4dff2",
		Muted:   "#9990b3",
		Faint:   "#6c6486",
		Accent:  "#b48ead",
		Success: "#8cc9a0",
		Warning: "#f2b880",
		Danger:  "#e8717a",
		Info:    "#88a9e0",

		StatusColors: map[string]string{
			"connected":    "#8cc9a0",
			"connecting":   "#88a9e0",
			"reconnecting": "#f2b880",
			"disconnected": "#6c6486",
			"failed":       "#e8717a",
			"pending":      "#9990b3",
			"fresh":        "#8cc9a0",
			"stale":        "#f2b880",
			"pushed":       "#88a9e0",
			"empty":        "#6c6486",
			"low":          "#9990b3",
			"medium":       "#f2b880",
			"high":         "#e8717a",
			"critical":     "#ff5c7a",
		},
	}
}

func slateTheme() Theme {
	// Tailwind CSS Slate/Sky palette: https://tailwindcss.com/docs/colors
	return Theme{
		Name: "Slate",

		Background: "#020617", // slate-950
		Surface:    "#0f172a", // slate-900
		SurfaceAlt: "#1e293b", // slate-800

		Border:      "#334155", // slate-700
		BorderFocus: "#38bdf8", // sky-400

		Text:    "#f1f5f9", // slate-100
		Muted:   "#94a3b8", // slate-400
		Faint:   "#64748b", // slate-500
		Accent:  "#38bdf8", // sky-400
		Success: "#22c55e", // green-500
		Warning: "#f59e0b", // amber-500
		Danger:  "#ef4444", // red-500
		Info:    "#06b6d4", // cyan-500

		StatusColors: map[string]string{
			"connected":    "#16a34a", // green-600
			"connecting":   "#38bdf8", // sky-400
			"reconnecting": "#f59e0b", // amber-500
			"disconnected": "#64748b", // slate-500
			"failed":       "#dc2626", // red-600
			"pending":      "#94a3b8", // slate-400
			"fresh":        "#22c55e", // green-500
			"stale":        "#f59e0b", // amber-500
			"pushed":       "#06b6d4", // cyan-500
			"empty":        "#64748b", // slate-500
			"low":          "#94a3b8", // slate-400
			"medium":       "#f59e0b", // amber-500
			"high":         "#ef4444", // red-500
			"critical":     "#b91c1c", // red-700
		},
	}
}
