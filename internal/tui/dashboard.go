package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/pkg/domain"
)

type plantsLoadedMsg struct {
	plants []domain.Plant
	err    error
}

type linksLoadedMsg struct {
	links []domain.FloraLink
	err   error
}

type dashboardModel struct {
	data     DataSource
	now      func() time.Time
	plants   []domain.Plant
	links    []domain.FloraLink
	readings map[int]map[string]domain.Reading
	cursor   int
	loading  bool
	err      string
	width    int
	height   int
}

func newDashboardModel(data DataSource, now func() time.Time) dashboardModel {
	return dashboardModel{data: data, now: now, readings: make(map[int]map[string]domain.Reading)}
}

func (m dashboardModel) load() tea.Cmd {
	d := m.data
	if d == nil {
		return nil
	}
	return tea.Batch(
		func() tea.Msg {
			plants, err := d.ListPlants(context.Background())
			return plantsLoadedMsg{plants: plants, err: err}
		},
		func() tea.Msg {
			links, err := d.ListFloraLinks(context.Background())
			return linksLoadedMsg{links: links, err: err}
		},
	)
}

func (m dashboardModel) Update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case plantsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.plants = msg.plants
		m.err = ""
		if m.cursor >= len(m.plants) {
			m.cursor = max(len(m.plants)-1, 0)
		}

	case linksLoadedMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.links = msg.links

	case ReadingMsg:
		r := msg.Reading
		byType, ok := m.readings[r.FloraLinkID]
		if !ok {
			byType = make(map[string]domain.Reading)
			m.readings[r.FloraLinkID] = byType
		}
		byType[r.Type] = r

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.cursor < len(m.plants)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "r":
			m.loading = true
			return m, m.load()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m dashboardModel) View(s session.Session) string {
	var b strings.Builder
	now := m.now()

	name := s.User.DisplayName()
	line := " " + selectedStyle.Render(name)
	if !s.ExpiresAt.IsZero() {
		line += "  " + metaStyle.Render("session renews before "+s.ExpiresAt.Local().Format("15:04"))
	}
	b.WriteString(line + "\n\n")

	if m.err != "" {
		b.WriteString(" " + errorStyle.Render("error: "+m.err) + "\n\n")
	}

	b.WriteString(" " + sectionHeaderStyle.Render("PLANTS") + "\n")
	switch {
	case m.loading && len(m.plants) == 0:
		b.WriteString("   " + dimStyle.Render("loading...") + "\n")
	case len(m.plants) == 0:
		b.WriteString("   " + dimStyle.Render("no plants yet") + "\n")
	}
	linked := make(map[int]bool)
	for i, p := range m.plants {
		prefix := "   "
		label := normalStyle.Render(truncStr(p.Label(), 32))
		if i == m.cursor {
			prefix = " " + accentStyle.Render("> ")
			label = selectedStyle.Render(truncStr(p.Label(), 32))
		}
		row := prefix + label
		if p.SpeciesName != "" && p.Name != "" {
			row += "  " + metaStyle.Render(truncStr(p.SpeciesName, 28))
		}
		b.WriteString(row + "\n")
		if p.LinkedFloraLink == nil {
			b.WriteString("     " + dimStyle.Render("no FloraLink, press p to set one up") + "\n")
			continue
		}
		linked[p.LinkedFloraLink.ID] = true
		b.WriteString(m.renderLink(*p.LinkedFloraLink, now))
	}

	var unlinked []domain.FloraLink
	for _, l := range m.links {
		if !linked[l.ID] {
			unlinked = append(unlinked, l)
		}
	}
	if len(unlinked) > 0 {
		b.WriteString("\n " + sectionHeaderStyle.Render("UNASSIGNED DEVICES") + "\n")
		for _, l := range unlinked {
			b.WriteString(m.renderLink(l, now))
		}
	}
	return b.String()
}

func (m dashboardModel) renderLink(l domain.FloraLink, now time.Time) string {
	name := l.Name
	if name == "" {
		name = fmt.Sprintf("FloraLink #%d", l.ID)
	}
	var b strings.Builder
	b.WriteString("     " + dimStyle.Render(name) + "\n")
	byType := m.readings[l.ID]
	if len(byType) == 0 {
		b.WriteString("       " + metaStyle.Render("waiting for readings") + "\n")
		return b.String()
	}
	for _, typ := range domain.SensorTypes {
		r, ok := byType[typ]
		if !ok {
			continue
		}
		value := fmt.Sprintf("%.1f%s", r.Value, domain.Unit(typ))
		b.WriteString(fmt.Sprintf("       %s %s  %s\n",
			SensorStyle(typ).Render("●"),
			normalStyle.Render(fmt.Sprintf("%-8s", value)),
			metaStyle.Render(sensorLabel(typ)+", "+formatTime(now, r.Timestamp))))
	}
	return b.String()
}

func sensorLabel(sensorType string) string {
	switch sensorType {
	case domain.SensorSoilMoisture:
		return "soil moisture"
	case domain.SensorTemperature:
		return "temperature"
	case domain.SensorHumidity:
		return "humidity"
	case domain.SensorLightLux:
		return "light"
	default:
		return strings.ToLower(sensorType)
	}
}

// selectedPlant returns the plant under the cursor.
func (m dashboardModel) selectedPlant() (domain.Plant, bool) {
	if m.cursor < 0 || m.cursor >= len(m.plants) {
		return domain.Plant{}, false
	}
	return m.plants[m.cursor], true
}
