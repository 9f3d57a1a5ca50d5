package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/apikey"
	"github.com/dayfit/florae/internal/ble"
	"github.com/dayfit/florae/internal/csrf"
	"github.com/dayfit/florae/internal/provision"
	"github.com/dayfit/florae/pkg/domain"
)

type provisionResultMsg struct{ err error }

// provisionModel is the FloraLink setup form. Focus 0 is the plant picker,
// the rest index into fields.
type provisionModel struct {
	svc       Provisioner
	plants    []domain.Plant
	plantIdx  int
	fields    []textField
	focus     int
	fieldErrs domain.FieldErrors
	err       string
	status    string
	busy      bool
}

func newProvisionModel(svc Provisioner, plants []domain.Plant, selected int) provisionModel {
	if selected < 0 || selected >= len(plants) {
		selected = 0
	}
	return provisionModel{
		svc:      svc,
		plants:   plants,
		plantIdx: selected,
		fields: []textField{
			{key: provision.FieldSSID, label: "WiFi network", placeholder: "network name (2.4 GHz)"},
			{key: provision.FieldPassword, label: "WiFi password", placeholder: "8-63 characters", masked: true},
		},
	}
}

func (m provisionModel) request() provision.Request {
	req := provision.Request{
		SSID:     m.fields[0].value,
		Password: m.fields[1].value,
	}
	if m.plantIdx < len(m.plants) {
		req.PlantID = m.plants[m.plantIdx].PlantID()
	}
	return req
}

func (m provisionModel) submit() tea.Cmd {
	svc := m.svc
	if svc == nil {
		return nil
	}
	req := m.request()
	return func() tea.Msg {
		return provisionResultMsg{err: svc.ProvisionDevice(context.Background(), req)}
	}
}

// editing reports whether keystrokes go to a text field.
func (m provisionModel) editing() bool {
	return m.focus > 0
}

func (m provisionModel) Update(msg tea.Msg) (provisionModel, tea.Cmd) {
	switch msg := msg.(type) {
	case provisionResultMsg:
		m.busy = false
		m.fieldErrs, m.err, m.status = nil, "", ""
		if msg.err != nil {
			var fe domain.FieldErrors
			if errors.As(msg.err, &fe) {
				m.fieldErrs = fe
			} else {
				m.err = provisionErrorMessage(msg.err)
			}
			return m, nil
		}
		m.fields[1].value = ""
		m.status = "FloraLink set up. It will appear once it reports."
		if m.plantIdx < len(m.plants) {
			m.status = "FloraLink set up for " + m.plants[m.plantIdx].Label() + ". It will appear once it reports."
		}
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		n := len(m.fields) + 1
		switch msg.String() {
		case "tab", "down":
			m.focus = (m.focus + 1) % n
		case "shift+tab", "up":
			m.focus = (m.focus + n - 1) % n
		case "left", "h":
			if m.focus == 0 {
				if m.plantIdx > 0 {
					m.plantIdx--
				}
				return m, nil
			}
			m.fields[m.focus-1].value = editRune(m.fields[m.focus-1].value, msg.String())
		case "right", "l":
			if m.focus == 0 {
				if m.plantIdx < len(m.plants)-1 {
					m.plantIdx++
				}
				return m, nil
			}
			m.fields[m.focus-1].value = editRune(m.fields[m.focus-1].value, msg.String())
		case "enter":
			m.busy = true
			m.err, m.status = "", ""
			return m, m.submit()
		default:
			if m.focus > 0 {
				m.fields[m.focus-1].value = editRune(m.fields[m.focus-1].value, msg.String())
			}
		}
	}
	return m, nil
}

func provisionErrorMessage(err error) string {
	switch {
	case errors.Is(err, apikey.ErrNoPlant):
		return "Select a plant first."
	case errors.Is(err, csrf.ErrUnavailable):
		return "Security token unavailable. Check your connection and try again."
	case errors.Is(err, ble.ErrDeviceNotFound):
		return "No FloraLink found. Hold the button until the light blinks, then try again."
	case errors.Is(err, ble.ErrConnection):
		return "Could not connect to the FloraLink. Move closer and try again."
	case errors.Is(err, ble.ErrServiceUnavailable):
		return "The device does not offer FloraLink setup. Check the firmware."
	case errors.Is(err, ble.ErrWrite):
		return "Sending credentials failed. Try again."
	case provision.IsKind(err, provision.KindKeyIssuance):
		return "Could not create a key for this plant. Try again."
	default:
		return "Setup failed. Try again."
	}
}

func (m provisionModel) View() string {
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Set up a FloraLink") + "\n\n")

	label := dimStyle.Render("Plant")
	if m.focus == 0 {
		label = selectedStyle.Render("Plant")
	}
	b.WriteString("  " + label + "\n")
	if len(m.plants) == 0 {
		b.WriteString("    " + dimStyle.Render("no plants yet, add one on the web first") + "\n")
	} else {
		name := m.plants[m.plantIdx].Label()
		if m.focus == 0 {
			b.WriteString("  " + inputPromptStyle.Render("< ") + selectedStyle.Render(name) + inputPromptStyle.Render(" >"))
		} else {
			b.WriteString("    " + normalStyle.Render(name))
		}
		b.WriteString(metaStyle.Render(fmt.Sprintf("  %d/%d", m.plantIdx+1, len(m.plants))) + "\n")
	}
	if msg := m.fieldErrs[provision.FieldPlant]; msg != "" {
		b.WriteString("    " + errorStyle.Render(msg) + "\n")
	}
	b.WriteString("\n")

	for i, f := range m.fields {
		b.WriteString(f.render(m.focus == i+1, m.fieldErrs[f.key]))
		b.WriteString("\n")
	}

	switch {
	case m.busy:
		b.WriteString("  " + warnStyle.Render("Searching for your FloraLink... keep it close.") + "\n")
	case m.err != "":
		b.WriteString("  " + errorStyle.Render(m.err) + "\n")
	case m.status != "":
		b.WriteString("  " + accentStyle.Render(m.status) + "\n")
	}
	return b.String()
}

func (m provisionModel) helpKeys() string {
	if m.focus == 0 {
		return helpBar("h/l", "plant", "tab", "next", "enter", "set up", "esc", "back")
	}
	return helpBar("tab", "next", "enter", "set up", "esc", "back")
}
