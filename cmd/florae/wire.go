package main

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/internal/apikey"
	"github.com/dayfit/florae/internal/auth"
	"github.com/dayfit/florae/internal/ble"
	"github.com/dayfit/florae/internal/config"
	"github.com/dayfit/florae/internal/csrf"
	"github.com/dayfit/florae/internal/logger"
	"github.com/dayfit/florae/internal/provision"
	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/internal/telemetry"
	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

const bootstrapTimeout = 15 * time.Second

// runtime is one process's worth of wired services.
type runtime struct {
	cfg       config.Config
	log       *logrus.Logger
	logFile   *os.File
	api       *client.Client
	tokens    *csrf.Cache
	store     *session.Store
	auth      *auth.Client
	keys      *apikey.Issuer
	refresher *session.Refresher

	// loggedOut is set when a live session ends in this process.
	loggedOut atomic.Bool
	unwatch   func()
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, f, err := logger.OpenFile(cfg.LogFile(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	api := client.New(cfg.APIURL, client.WithLogger(log))
	saved, err := session.LoadCookies(cfg.SessionFile())
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable session file")
	}
	api.SetCookies(saved)

	tokens := csrf.New(api, log)
	store := session.NewStore()
	rt := &runtime{
		cfg:     cfg,
		log:     log,
		logFile: f,
		api:     api,
		tokens:  tokens,
		store:   store,
		auth:    auth.New(api, tokens, store, log),
		keys:    apikey.New(api, tokens, log),
		refresher: session.NewRefresher(api, tokens, store,
			session.WithInterval(cfg.RefreshInterval),
			session.WithLogger(log)),
	}

	var wasIn atomic.Bool
	rt.unwatch = store.Subscribe(func(s session.Session) {
		if wasIn.Swap(s.Authenticated) && !s.Authenticated {
			rt.loggedOut.Store(true)
		}
	})
	return rt, nil
}

// bootstrap restores the saved session, if any. Failure leaves the user
// logged out.
func (rt *runtime) bootstrap(ctx context.Context) session.Session {
	if len(rt.api.Cookies()) == 0 {
		return session.Session{}
	}
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()
	s, err := rt.refresher.Bootstrap(ctx)
	if err != nil {
		rt.log.WithError(err).Info("saved session could not be restored")
	}
	return s
}

func (rt *runtime) provisioner() *provision.Orchestrator {
	radio := ble.NewHostRadio(rt.log)
	device := ble.NewProvisioner(radio,
		ble.WithScanTimeout(rt.cfg.ScanTimeout),
		ble.WithConnectTimeout(rt.cfg.ConnectTimeout),
		ble.WithLogger(rt.log))
	return provision.New(rt.keys, device,
		provision.WithRevokeOnFailure(rt.cfg.RevokeOnFailure),
		provision.WithLogger(rt.log))
}

// persist keeps the cookie file in step with the session: written while
// signed in, removed once a session ended here, untouched otherwise.
func (rt *runtime) persist() {
	path := rt.cfg.SessionFile()
	var err error
	switch {
	case rt.store.Current().Authenticated:
		err = session.SaveCookies(path, rt.api.Cookies())
	case rt.loggedOut.Load():
		err = session.RemoveCookies(path)
	}
	if err != nil {
		rt.log.WithError(err).Warn("session file not updated")
	}
}

func (rt *runtime) close() {
	rt.persist()
	rt.unwatch()
	rt.refresher.Close()
	rt.logFile.Close() //nolint:errcheck
}

// liveFeed runs the telemetry stream while a session exists.
type liveFeed struct {
	feed *telemetry.Feed
	send telemetry.Handler
	log  logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLiveFeed(feed *telemetry.Feed, send func(domain.Reading), log logrus.FieldLogger) *liveFeed {
	return &liveFeed{feed: feed, send: send, log: log}
}

func (l *liveFeed) onSession(s session.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !s.Authenticated {
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
		return
	}
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.feed.Run(ctx, l.send); err != nil && ctx.Err() == nil {
			l.log.WithError(err).Warn("telemetry feed stopped")
		}
	}()
}

// stop ends the stream and waits for it.
func (l *liveFeed) stop() {
	l.onSession(session.Session{})
	l.wg.Wait()
}
