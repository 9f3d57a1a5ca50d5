package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/pkg/domain"
)

func newTestDashboard() dashboardModel {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newDashboardModel(&fakeData{}, func() time.Time { return now })
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return m
}

var testSession = session.Session{Authenticated: true, User: domain.UserData{Username: "alice"}}

func TestDashboardShowsPlantsAndLinks(t *testing.T) {
	m := newTestDashboard()
	m, _ = m.Update(plantsLoadedMsg{plants: testPlants})
	m, _ = m.Update(linksLoadedMsg{links: []domain.FloraLink{{ID: 7, Name: "FloraLink-7"}, {ID: 9, Name: "FloraLink-9"}}})

	view := m.View(testSession)
	for _, want := range []string{"alice", "Fern", "Monstera", "FloraLink-7", "UNASSIGNED DEVICES", "FloraLink-9", "press p to set one up"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDashboardLatestReadingWins(t *testing.T) {
	m := newTestDashboard()
	m, _ = m.Update(plantsLoadedMsg{plants: testPlants})
	now := m.now()

	m, _ = m.Update(ReadingMsg{Reading: domain.Reading{FloraLinkID: 7, Type: domain.SensorSoilMoisture, Value: 30, Timestamp: now.Add(-time.Hour)}})
	m, _ = m.Update(ReadingMsg{Reading: domain.Reading{FloraLinkID: 7, Type: domain.SensorSoilMoisture, Value: 41.5, Timestamp: now}})

	view := m.View(testSession)
	if !strings.Contains(view, "41.5%") {
		t.Errorf("view missing latest reading:\n%s", view)
	}
	if strings.Contains(view, "30.0%") {
		t.Errorf("view kept a stale reading:\n%s", view)
	}
	if !strings.Contains(view, "soil moisture, just now") {
		t.Errorf("view missing reading label:\n%s", view)
	}
}

func TestDashboardLoadError(t *testing.T) {
	m := newTestDashboard()
	m, _ = m.Update(plantsLoadedMsg{err: errors.New("connection refused")})
	if view := m.View(testSession); !strings.Contains(view, "connection refused") {
		t.Errorf("view missing error:\n%s", view)
	}
}

func TestDashboardEmpty(t *testing.T) {
	m := newTestDashboard()
	m, _ = m.Update(plantsLoadedMsg{})
	if view := m.View(testSession); !strings.Contains(view, "no plants yet") {
		t.Errorf("expected empty hint:\n%s", view)
	}
}

func TestDashboardCursorClamps(t *testing.T) {
	m := newTestDashboard()
	m, _ = m.Update(plantsLoadedMsg{plants: testPlants})
	for range 5 {
		m, _ = m.Update(keyRunes("j"))
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	p, ok := m.selectedPlant()
	if !ok || p.Name != "Monstera" {
		t.Errorf("selectedPlant() = %+v, %v", p, ok)
	}

	m, _ = m.Update(plantsLoadedMsg{plants: testPlants[:1]})
	if m.cursor != 0 {
		t.Errorf("cursor = %d after shrink, want 0", m.cursor)
	}
}

func TestDashboardReload(t *testing.T) {
	m := newTestDashboard()
	m, cmd := m.Update(keyRunes("r"))
	if cmd == nil || !m.loading {
		t.Error("r should reload")
	}
}
