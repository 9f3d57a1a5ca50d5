package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/auth"
	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/pkg/domain"
)

type authMode int

const (
	modeSignIn authMode = iota
	modeRegister
)

type authResultMsg struct {
	session session.Session
	err     error
}

// authModel is the sign-in and registration form.
type authModel struct {
	svc       Authenticator
	mode      authMode
	fields    []textField
	focus     int
	fieldErrs domain.FieldErrors
	err       string
	busy      bool
}

func newAuthModel(svc Authenticator, mode authMode) authModel {
	m := authModel{svc: svc}
	m.setMode(mode)
	return m
}

func (m *authModel) setMode(mode authMode) {
	m.mode = mode
	m.focus = 0
	m.fieldErrs = nil
	m.err = ""
	switch mode {
	case modeRegister:
		m.fields = []textField{
			{key: "email", label: "Email", placeholder: "you@example.com"},
			{key: "username", label: "Username", placeholder: "3-20 letters, digits or _"},
			{key: "password", label: "Password", placeholder: "8+ chars, mixed case, digit, symbol", masked: true},
		}
	default:
		m.fields = []textField{
			{key: "identifier", label: "Email or username", placeholder: "you@example.com"},
			{key: "password", label: "Password", placeholder: "your password", masked: true},
		}
	}
}

func (m authModel) value(key string) string {
	for _, f := range m.fields {
		if f.key == key {
			return f.value
		}
	}
	return ""
}

// clearSecrets empties every masked field.
func (m *authModel) clearSecrets() {
	for i := range m.fields {
		if m.fields[i].masked {
			m.fields[i].value = ""
		}
	}
}

func (m authModel) submit() tea.Cmd {
	svc := m.svc
	if svc == nil {
		return nil
	}
	if m.mode == modeRegister {
		email, username, password := m.value("email"), m.value("username"), m.value("password")
		return func() tea.Msg {
			s, err := svc.Register(context.Background(), email, username, password)
			return authResultMsg{session: s, err: err}
		}
	}
	identifier, password := strings.TrimSpace(m.value("identifier")), m.value("password")
	return func() tea.Msg {
		s, err := svc.SignIn(context.Background(), identifier, password)
		return authResultMsg{session: s, err: err}
	}
}

func (m authModel) Update(msg tea.Msg) (authModel, tea.Cmd) {
	switch msg := msg.(type) {
	case authResultMsg:
		m.busy = false
		m.clearSecrets()
		m.fieldErrs, m.err = nil, ""
		if msg.err != nil {
			var fe domain.FieldErrors
			if errors.As(msg.err, &fe) {
				m.fieldErrs = fe
			} else {
				m.err = authErrorMessage(msg.err)
			}
			return m, nil
		}
		m.setMode(m.mode)
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "tab", "down":
			m.focus = (m.focus + 1) % len(m.fields)
		case "shift+tab", "up":
			m.focus = (m.focus + len(m.fields) - 1) % len(m.fields)
		case "ctrl+r":
			if m.mode == modeSignIn {
				m.setMode(modeRegister)
			} else {
				m.setMode(modeSignIn)
			}
		case "enter":
			m.busy = true
			m.err = ""
			return m, m.submit()
		default:
			m.fields[m.focus].value = editRune(m.fields[m.focus].value, msg.String())
		}
	}
	return m, nil
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenUnavailable):
		return "Security token unavailable. Check your connection and try again."
	case errors.Is(err, auth.ErrRegistrationFailed):
		return "Registration failed. The username or email may already be taken."
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials."
	default:
		return "Something went wrong. Try again."
	}
}

func (m authModel) View() string {
	var b strings.Builder
	title := "Sign in"
	if m.mode == modeRegister {
		title = "Create an account"
	}
	b.WriteString("\n  " + titleStyle.Render(title) + "\n\n")
	for i, f := range m.fields {
		b.WriteString(f.render(i == m.focus, m.fieldErrs[f.key]))
		b.WriteString("\n")
	}
	switch {
	case m.busy:
		b.WriteString("  " + dimStyle.Render("working...") + "\n")
	case m.err != "":
		b.WriteString("  " + errorStyle.Render(m.err) + "\n")
	}
	return b.String()
}

func (m authModel) helpKeys() string {
	other := "register"
	if m.mode == modeRegister {
		other = "sign in"
	}
	return helpBar("tab", "next", "enter", "submit", "ctrl+r", other, "ctrl+c", "quit")
}
