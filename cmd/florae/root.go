package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/internal/telemetry"
	"github.com/dayfit/florae/internal/tui"
	"github.com/dayfit/florae/pkg/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "florae",
		Short: "Watch your plants and set up FloraLink sensors from the terminal.",
		Long: `florae signs you in to your Florae account, shows your plants with live
sensor readings, and provisions FloraLink devices over Bluetooth.

Run 'florae' with no arguments to open the dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDashboard(cmd.Context(), tui.ScreenDashboard)
		},
	}
	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newProvisionCmd(),
		newKeyCmd(),
		newWebCmd(),
		newVersionCmd(),
	)
	return root
}

// runDashboard opens the terminal UI on the given screen.
func runDashboard(ctx context.Context, screen tui.Screen) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	s := rt.bootstrap(ctx)
	app := tui.NewApp(tui.Services{
		Auth:      rt.auth,
		Data:      rt.api,
		Keys:      rt.keys,
		Provision: rt.provisioner(),
		Session:   s,
		WebURL:    rt.cfg.WebURL,
		KeyTTL:    rt.cfg.KeyRevealTTL,
	}, screen)
	p := tea.NewProgram(app, tea.WithAltScreen())

	feed := newLiveFeed(
		telemetry.New(rt.cfg.WebSocketURL, rt.api.Jar(), telemetry.WithLogger(rt.log)),
		func(r domain.Reading) { p.Send(tui.ReadingMsg{Reading: r}) },
		rt.log,
	)
	defer feed.stop()

	unsubscribe := rt.store.Subscribe(func(s session.Session) {
		feed.onSession(s)
		p.Send(tui.SessionMsg{Session: s})
	})
	defer unsubscribe()
	feed.onSession(s)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
