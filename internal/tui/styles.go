package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Shimmer animation for the FLORAE logo.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders "F L O R A E" as a slow wave moving from moss
// green (#1f3b22) to leaf green (#7bd88f).
func renderShimmerLogo(frame int) string {
	const text = "FLORAE"
	n := len(text)

	var out string
	t := float64(frame)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		phase := t*0.1 - x*3.0
		phase += math.Sin(t*0.023) * 2.0

		b := math.Sin(phase)*0.5 + 0.5
		b = math.Pow(b, 1.3)
		b = b*0.75 + math.Sin(t*0.035)*0.12 + 0.18
		b = math.Max(0.05, math.Min(1.0, b))

		r := clampByte(31 + b*(123-31))
		g := clampByte(59 + b*(216-59))
		bl := clampByte(34 + b*(143-34))

		s := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
		out += s.Render(string(text[i]))
		if i < n-1 {
			out += "  "
		}
	}
	return out
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8a9588"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e6efe4")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c3cec0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#56614f"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8a9588"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#56614f"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7bd88f"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7bd88f")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d46a6a"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0b44c"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f2e8c9")).
			Background(lipgloss.Color("#23301f")).
			Padding(0, 1)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7bd88f")).
				Bold(true)

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3c4838"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6b7866"))

	// Sensor colors.
	sensorColors = map[string]lipgloss.Color{
		"SOIL_MOISTURE":   lipgloss.Color("#8b6b47"),
		"ENV_TEMPERATURE": lipgloss.Color("#f0944a"),
		"ENV_HUMIDITY":    lipgloss.Color("#3ecce4"),
		"LIGHT_LUX":       lipgloss.Color("#f5d76e"),
	}
)

// SensorStyle returns a bold style colored for the given sensor type.
func SensorStyle(sensorType string) lipgloss.Style {
	if c, ok := sensorColors[sensorType]; ok {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#8a9588")).Bold(true)
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// helpBar joins key/label pairs into one help line.
func helpBar(pairs ...string) string {
	entries := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		entries = append(entries, helpEntry(pairs[i], pairs[i+1]))
	}
	return " " + strings.Join(entries, "  ")
}

// helpView renders the help overlay. webURL is offered as a link when set.
func helpView(webURL string, cursor int) string {
	quote := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render(`"Water less, watch more."`)

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)

	commands := []struct{ cmd, desc string }{
		{"florae", "Open the dashboard"},
		{"florae login", "Sign in with email or username"},
		{"florae register", "Create an account"},
		{"florae provision", "Set up a FloraLink over Bluetooth"},
		{"florae key", "Show a one-time API key for a plant"},
		{"florae logout", "End your session"},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n  %s\n\n", titleStyle.Render("F L O R A E"), quote)
	fmt.Fprintf(&b, "  %s\n", sectionStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(&b, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-20s", c.cmd)), descStyle.Render(c.desc))
	}
	if webURL != "" {
		fmt.Fprintf(&b, "\n  %s\n", sectionStyle.Render("Links (enter to open)"))
		label := fmt.Sprintf("%-20s", "Web dashboard")
		prefix := "    "
		if cursor == 0 {
			label = accentStyle.Bold(true).Render(label)
			prefix = "  > "
		} else {
			label = cmdStyle.Render(label)
		}
		fmt.Fprintf(&b, "%s%s  %s\n", prefix, label, descStyle.Italic(true).Render(webURL))
	}
	return b.String()
}
