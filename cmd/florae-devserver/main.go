// Command florae-devserver runs an in-memory Florae backend for local use
// of the florae CLI. Nothing is persisted.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dayfit/florae/internal/devserver"
	"github.com/dayfit/florae/internal/logger"
)

type options struct {
	addr     string
	logLevel string
	interval time.Duration
	seed     bool
	user     string
	email    string
	password string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "florae-devserver",
		Short: "Run an in-memory Florae backend for local development",
		Long: `florae-devserver serves the Florae auth, key, plant and fanout endpoints from
memory. Point the CLI at it with FLORAE_API_URL=http://localhost:8080.

FLORAE_DEV_JWT_SECRET sets the access token signing secret; a random one is
generated when it is unset.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8080", "listen address")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	f.DurationVar(&opts.interval, "interval", 5*time.Second, "simulated reading interval (0 disables)")
	f.BoolVar(&opts.seed, "seed", true, "create a demo account with plants and a device")
	f.StringVar(&opts.user, "user", "demo", "demo username")
	f.StringVar(&opts.email, "email", "demo@florae.test", "demo email")
	f.StringVar(&opts.password, "password", "Glimmer!Fern7Moss", "demo password")
	return cmd
}

func jwtSecret() ([]byte, error) {
	if s := os.Getenv("FLORAE_DEV_JWT_SECRET"); s != "" {
		return []byte(s), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	return b, nil
}

func seed(srv *devserver.Server, opts options, log logrus.FieldLogger) error {
	if err := srv.CreateUser(opts.user, opts.email, opts.password); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	fern := srv.AddPlant(opts.user, "Fern", "Nephrolepis exaltata")
	srv.AddPlant(opts.user, "Monstera", "Monstera deliciosa")
	srv.AddPlant(opts.user, "", "Ocimum basilicum")
	fl, err := srv.SeedDevice(opts.user, fern.ID, "FloraLink-Fern")
	if err != nil {
		return fmt.Errorf("seed device: %w", err)
	}
	log.WithFields(logrus.Fields{"user": opts.user, "floralink_id": fl.ID}).Info("seeded demo account")
	return nil
}

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	log, err := logger.New(os.Stderr, opts.logLevel)
	if err != nil {
		return err
	}
	secret, err := jwtSecret()
	if err != nil {
		return err
	}

	srv := devserver.New(devserver.DefaultConfig(secret), log)
	if opts.seed {
		if err := seed(srv, opts, log); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.interval > 0 {
		go srv.Simulate(ctx, opts.interval)
	}

	httpSrv := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", opts.addr).Info("florae devserver listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}
