package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dayfit/florae/internal/browser"
	"github.com/dayfit/florae/internal/config"
	"github.com/dayfit/florae/internal/provision"
	"github.com/dayfit/florae/internal/tui"
	"github.com/dayfit/florae/pkg/domain"
)

var errNotSignedIn = errors.New("not signed in; run 'florae login'")

// readSecret reads one line from r, for --password-stdin.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read password: empty input")
	}
	return line, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newLoginCmd() *cobra.Command {
	var identifier string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your email or username",
		Long: `Opens the sign-in form. With --identifier and --password-stdin the sign-in
runs without the form, e.g. for scripts:

  echo "$FLORAE_PASSWORD" | florae login -u alice --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if identifier == "" && !passwordStdin {
				return runDashboard(contextOf(cmd), tui.ScreenSignIn)
			}
			if identifier == "" || !passwordStdin {
				return errors.New("--identifier and --password-stdin go together")
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			s, err := rt.auth.SignIn(contextOf(cmd), identifier, password)
			if err != nil {
				return describeAuthError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", s.User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&identifier, "identifier", "u", "", "email or username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var email, username string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" && username == "" && !passwordStdin {
				return runDashboard(contextOf(cmd), tui.ScreenRegister)
			}
			if !passwordStdin {
				return errors.New("--password-stdin is required with --email and --username")
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			s, err := rt.auth.Register(contextOf(cmd), email, username, password)
			if err != nil {
				return describeAuthError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. You are signed in.\n", s.User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&username, "username", "", "username (3-20 letters, digits or _)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End your session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if s := rt.bootstrap(contextOf(cmd)); !s.Authenticated {
				// Nothing to end on the server; drop whatever is on disk.
				rt.loggedOut.Store(true)
				fmt.Fprintln(cmd.OutOrStdout(), "You are not signed in.")
				return nil
			}
			rt.auth.SignOut(contextOf(cmd))
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			fmt.Fprintln(cmd.OutOrStdout(), greeting())
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			s := rt.bootstrap(contextOf(cmd))
			if !s.Authenticated {
				fmt.Fprintln(cmd.ErrOrStderr(), greeting())
				return errNotSignedIn
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", s.User.DisplayName())
			if s.User.Username != "" {
				fmt.Fprintf(out, "  username  %s\n", s.User.Username)
			}
			if s.User.Email != "" {
				fmt.Fprintf(out, "  email     %s\n", s.User.Email)
			}
			if !s.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "  session   renews before %s\n", s.ExpiresAt.Local().Format("15:04"))
			}
			return nil
		},
	}
}

func newProvisionCmd() *cobra.Command {
	var plant, ssid string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Set up a FloraLink over Bluetooth",
		Long: `Opens the FloraLink setup form. With --plant, --ssid and --password-stdin the
setup runs without the form. Hold the FloraLink's button until its light
blinks before starting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if plant == "" && ssid == "" && !passwordStdin {
				return runDashboard(contextOf(cmd), tui.ScreenProvision)
			}
			if plant == "" || ssid == "" || !passwordStdin {
				return errors.New("--plant, --ssid and --password-stdin go together")
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := contextOf(cmd)
			if s := rt.bootstrap(ctx); !s.Authenticated {
				return errNotSignedIn
			}
			plants, err := rt.api.ListPlants(ctx)
			if err != nil {
				return err
			}
			p, err := findPlant(plants, plant)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Searching for a FloraLink for %s...\n", p.Label())
			err = rt.provisioner().ProvisionDevice(ctx, provision.Request{SSID: ssid, Password: password, PlantID: p.PlantID()})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "FloraLink set up for %s.\n", p.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&plant, "plant", "", "plant id or name")
	cmd.Flags().StringVar(&ssid, "ssid", "", "WiFi network name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the WiFi password from stdin")
	return cmd
}

// findPlant matches arg against plant ids first, then names.
func findPlant(plants []domain.Plant, arg string) (domain.Plant, error) {
	for _, p := range plants {
		if p.PlantID() == arg {
			return p, nil
		}
	}
	var found []domain.Plant
	for _, p := range plants {
		if strings.EqualFold(p.Label(), arg) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return domain.Plant{}, fmt.Errorf("no plant named %q", arg)
	case 1:
		return found[0], nil
	default:
		return domain.Plant{}, fmt.Errorf("%d plants are named %q; use the plant id", len(found), arg)
	}
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Show a one-time API key for a plant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDashboard(contextOf(cmd), tui.ScreenKey)
		},
	}
}

func newWebCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Open the Florae web app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", cfg.WebURL)
			return browser.Open(cfg.WebURL)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "florae "+version)
		},
	}
}
