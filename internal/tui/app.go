package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dayfit/florae/internal/browser"
	"github.com/dayfit/florae/internal/session"
)

type view int

const (
	viewLogin view = iota
	viewDashboard
	viewProvision
	viewKey
)

// Screen selects the view the App opens on.
type Screen int

const (
	ScreenDashboard Screen = iota
	ScreenSignIn
	ScreenRegister
	ScreenProvision
	ScreenKey
)

// signedOutMsg is sent once SignOut has returned.
type signedOutMsg struct{}

// App is the root Bubbletea model.
type App struct {
	svc        Services
	view       view
	session    session.Session
	auth       authModel
	dash       dashboardModel
	prov       provisionModel
	keys       keyModel
	start      Screen
	helpOpen   bool
	helpCursor int
	status     string
	width      int
	height     int
	frame      int // logo shimmer animation frame
}

// NewApp creates the dashboard application. Without a session every start
// screen other than ScreenRegister falls back to sign-in.
func NewApp(svc Services, start Screen) App {
	if svc.Now == nil {
		svc.Now = time.Now
	}
	a := App{
		svc:     svc,
		session: svc.Session,
		start:   start,
		dash:    newDashboardModel(svc.Data, svc.Now),
	}
	a.prov = newProvisionModel(svc.Provision, nil, 0)
	a.keys = newKeyModel(svc.Keys, nil, 0, svc.KeyTTL, svc.Now)

	switch {
	case start == ScreenRegister:
		a.view = viewLogin
		a.auth = newAuthModel(svc.Auth, modeRegister)
	case !a.session.Authenticated || start == ScreenSignIn:
		a.view = viewLogin
		a.auth = newAuthModel(svc.Auth, modeSignIn)
	default:
		a.auth = newAuthModel(svc.Auth, modeSignIn)
		a.view = a.postLoginView()
	}
	return a
}

func (a App) postLoginView() view {
	switch a.start {
	case ScreenProvision:
		return viewProvision
	case ScreenKey:
		return viewKey
	default:
		return viewDashboard
	}
}

func (a App) Init() tea.Cmd {
	if a.view == viewLogin {
		return shimmerTickCmd()
	}
	a.dash.loading = true
	return tea.Batch(shimmerTickCmd(), a.dash.load())
}

func (a App) signOut() tea.Cmd {
	svc := a.svc.Auth
	if svc == nil {
		return func() tea.Msg { return signedOutMsg{} }
	}
	return func() tea.Msg {
		svc.SignOut(context.Background())
		return signedOutMsg{}
	}
}

// toLogin drops every per-user screen, including any revealed key.
func (a App) toLogin(status string) App {
	a.view = viewLogin
	a.session = session.Session{}
	a.auth = newAuthModel(a.svc.Auth, modeSignIn)
	a.dash = newDashboardModel(a.svc.Data, a.svc.Now)
	a.prov = newProvisionModel(a.svc.Provision, nil, 0)
	a.keys = newKeyModel(a.svc.Keys, nil, 0, a.svc.KeyTTL, a.svc.Now)
	a.helpOpen = false
	a.status = status
	return a
}

func (a App) toDashboard() App {
	a.view = viewDashboard
	a.prov = newProvisionModel(a.svc.Provision, a.dash.plants, a.dash.cursor)
	a.keys = newKeyModel(a.svc.Keys, a.dash.plants, a.dash.cursor, a.svc.KeyTTL, a.svc.Now)
	return a
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(2) + status(1) + help(1) = 4 lines
		a.dash, _ = a.dash.Update(tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 4})
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case SessionMsg:
		if !msg.Session.Authenticated {
			if !a.session.Authenticated {
				return a, nil
			}
			return a.toLogin("Your session ended. Sign in again."), nil
		}
		a.session = msg.Session
		if a.view == viewLogin && !a.auth.busy {
			a.status = ""
			a.view = a.postLoginView()
			a.dash.loading = true
			return a, a.dash.load()
		}
		return a, nil

	case authResultMsg:
		var cmd tea.Cmd
		a.auth, cmd = a.auth.Update(msg)
		if msg.err != nil {
			return a, cmd
		}
		a.session = msg.session
		a.status = ""
		a.view = a.postLoginView()
		a.dash.loading = true
		return a, a.dash.load()

	case signedOutMsg:
		return a.toLogin("Signed out."), nil

	case plantsLoadedMsg:
		a.dash, _ = a.dash.Update(msg)
		if len(a.prov.plants) == 0 {
			a.prov.plants = a.dash.plants
		}
		if len(a.keys.plants) == 0 {
			a.keys.plants = a.dash.plants
		}
		return a, nil

	case linksLoadedMsg, ReadingMsg:
		a.dash, _ = a.dash.Update(msg)
		return a, nil

	case provisionResultMsg:
		var cmd tea.Cmd
		a.prov, cmd = a.prov.Update(msg)
		if msg.err == nil {
			return a, tea.Batch(cmd, a.dash.load())
		}
		return a, cmd

	case keyGeneratedMsg, revealTickMsg, copyResultMsg:
		var cmd tea.Cmd
		a.keys, cmd = a.keys.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.helpOpen {
			return a.updateHelp(msg)
		}
		return a.updateKey(msg)
	}
	return a, nil
}

func (a App) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "h", "esc":
		a.helpOpen = false
	case "q":
		return a, tea.Quit
	case "enter":
		if a.svc.WebURL != "" {
			browser.Open(a.svc.WebURL) //nolint:errcheck // best-effort browser open
		}
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.view {
	case viewLogin:
		a.auth, cmd = a.auth.Update(msg)
		return a, cmd

	case viewProvision:
		if msg.String() == "esc" && !a.prov.busy {
			return a.toDashboard(), nil
		}
		a.prov, cmd = a.prov.Update(msg)
		return a, cmd

	case viewKey:
		switch msg.String() {
		case "esc":
			if !a.keys.busy {
				return a.toDashboard(), nil
			}
		case "q":
			return a, tea.Quit
		}
		a.keys, cmd = a.keys.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "h":
		a.helpOpen = true
		a.helpCursor = 0
		return a, nil
	case "p":
		a = a.toDashboard()
		a.view = viewProvision
		return a, nil
	case "k":
		a = a.toDashboard()
		a.view = viewKey
		return a, nil
	case "o":
		a.status = "Signing out..."
		return a, a.signOut()
	case "w":
		if a.svc.WebURL != "" {
			if err := browser.Open(a.svc.WebURL); err != nil {
				a.status = "Could not open the browser."
			}
		}
		return a, nil
	}
	a.dash, cmd = a.dash.Update(msg)
	return a, cmd
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)
	header := centered(logo, a.width, lipgloss.Width(logo))

	var statusLine string
	switch {
	case a.status != "":
		statusLine = warnStyle.Render(a.status)
	case a.session.Authenticated:
		statusLine = metaStyle.Render("signed in as " + a.session.User.DisplayName())
	}
	header += "\n" + centered(statusLine, a.width, lipgloss.Width(statusLine))

	var body, help string
	switch a.view {
	case viewLogin:
		body = a.auth.View()
		help = a.auth.helpKeys()
	case viewDashboard:
		body = a.dash.View(a.session)
		help = helpBar("j/k", "nav", "p", "provision", "k", "key", "r", "reload", "w", "web", "o", "sign out", "h", "help", "q", "quit")
	case viewProvision:
		body = a.prov.View()
		help = a.prov.helpKeys()
	case viewKey:
		body = a.keys.View()
		help = a.keys.helpKeys()
	}

	if a.helpOpen {
		body = helpView(a.svc.WebURL, a.helpCursor)
		help = helpBar("enter", "open", "esc", "close")
	}

	body = strings.TrimRight(truncateToHeight(body, a.height-4), "\n")
	return fmt.Sprintf("%s\n\n%s\n%s", header, body, help)
}
