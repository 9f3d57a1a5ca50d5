package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/apikey"
	"github.com/dayfit/florae/internal/csrf"
	"github.com/dayfit/florae/pkg/domain"
)

// DefaultKeyTTL is how long a revealed key stays on screen.
const DefaultKeyTTL = 900 * time.Second

type keyGeneratedMsg struct {
	key string
	err error
}

type copyResultMsg struct{ err error }

// revealTickMsg drives the reveal countdown.
type revealTickMsg time.Time

func revealTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return revealTickMsg(t)
	})
}

// keyModel generates a key for one plant and shows it until the TTL runs
// out or the view is left.
type keyModel struct {
	svc        KeyGenerator
	plants     []domain.Plant
	plantIdx   int
	key        string
	revealedAt time.Time
	ttl        time.Duration
	now        func() time.Time
	busy       bool
	err        string
	status     string
}

func newKeyModel(svc KeyGenerator, plants []domain.Plant, selected int, ttl time.Duration, now func() time.Time) keyModel {
	if selected < 0 || selected >= len(plants) {
		selected = 0
	}
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return keyModel{svc: svc, plants: plants, plantIdx: selected, ttl: ttl, now: now}
}

func (m keyModel) generate() tea.Cmd {
	svc := m.svc
	if svc == nil {
		return nil
	}
	var plantID string
	if m.plantIdx < len(m.plants) {
		plantID = m.plants[m.plantIdx].PlantID()
	}
	return func() tea.Msg {
		key, err := svc.GenerateKey(context.Background(), plantID)
		return keyGeneratedMsg{key: key, err: err}
	}
}

// remaining is the time left before the key is hidden.
func (m keyModel) remaining() time.Duration {
	if m.key == "" {
		return 0
	}
	return m.ttl - m.now().Sub(m.revealedAt)
}

func (m *keyModel) wipe() {
	m.key = ""
	m.revealedAt = time.Time{}
}

func (m keyModel) Update(msg tea.Msg) (keyModel, tea.Cmd) {
	switch msg := msg.(type) {
	case keyGeneratedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = keyErrorMessage(msg.err)
			return m, nil
		}
		m.err, m.status = "", ""
		m.key = msg.key
		m.revealedAt = m.now()
		return m, revealTickCmd()

	case revealTickMsg:
		if m.key == "" {
			return m, nil
		}
		if m.remaining() <= 0 {
			m.wipe()
			m.status = "Key hidden. Generate a new one if you still need it."
			return m, nil
		}
		return m, revealTickCmd()

	case copyResultMsg:
		if msg.err != nil {
			m.err = "clipboard unavailable: " + msg.err.Error()
		} else {
			m.status = "copied!"
		}
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "left", "h":
			if m.plantIdx > 0 {
				m.plantIdx--
			}
		case "right", "l":
			if m.plantIdx < len(m.plants)-1 {
				m.plantIdx++
			}
		case "enter":
			m.busy = true
			m.wipe()
			m.err, m.status = "", ""
			return m, m.generate()
		case "c":
			if m.key == "" {
				return m, nil
			}
			key := m.key
			return m, func() tea.Msg {
				return copyResultMsg{err: clipboard.WriteAll(key)}
			}
		}
	}
	return m, nil
}

func keyErrorMessage(err error) string {
	var kie *apikey.KeyIssuanceError
	switch {
	case errors.Is(err, apikey.ErrNoPlant):
		return "Select a plant first."
	case errors.Is(err, csrf.ErrUnavailable):
		return "Security token unavailable. Check your connection and try again."
	case errors.As(err, &kie):
		return fmt.Sprintf("Key %s failed. Try again.", kie.Stage)
	default:
		return "Could not generate a key. Try again."
	}
}

func (m keyModel) View() string {
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("API key") + "\n\n")

	if len(m.plants) == 0 {
		b.WriteString("  " + dimStyle.Render("no plants yet, add one on the web first") + "\n")
	} else {
		b.WriteString("  " + dimStyle.Render("Plant") + "\n")
		b.WriteString("  " + inputPromptStyle.Render("< ") + selectedStyle.Render(m.plants[m.plantIdx].Label()) +
			inputPromptStyle.Render(" >") + metaStyle.Render(fmt.Sprintf("  %d/%d", m.plantIdx+1, len(m.plants))) + "\n")
	}
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString("  " + dimStyle.Render("generating...") + "\n")
	case m.key != "":
		b.WriteString("  " + keyStyle.Render(m.key) + "\n\n")
		b.WriteString("  " + warnStyle.Render("Shown once. Hidden in "+formatCountdown(m.remaining())) + "\n")
	default:
		b.WriteString("  " + metaStyle.Render("Press enter to generate a key for this plant.") + "\n")
	}

	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	} else if m.status != "" {
		b.WriteString("\n  " + accentStyle.Render(m.status) + "\n")
	}
	return b.String()
}

func (m keyModel) helpKeys() string {
	if m.key != "" {
		return helpBar("c", "copy", "enter", "regenerate", "esc", "back")
	}
	return helpBar("h/l", "plant", "enter", "generate", "esc", "back")
}
