package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

// DefaultInterval renews the 15 minute access token with headroom.
const DefaultInterval = 13*time.Minute + 30*time.Second

// ErrInFlight is returned by Refresh when another refresh has not finished.
var ErrInFlight = errors.New("refresh already in flight")

// API is the subset of the backend client the refresher needs.
type API interface {
	Refresh(ctx context.Context, csrfToken string) (*client.MessageResponse, error)
	GetUserData(ctx context.Context) (*domain.UserData, error)
	Cookies() []*http.Cookie
}

// TokenSource supplies the anti-forgery token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// State is the refresher's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Ticker is the timer the refresher waits on.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets the refresh period.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) { r.interval = d }
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(r *Refresher) { r.newTicker = fn }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Refresher) { r.log = l }
}

// Refresher renews the session before the access token expires. The timer
// runs only while the store holds an authenticated session.
type Refresher struct {
	api       API
	tokens    TokenSource
	store     *Store
	log       logrus.FieldLogger
	interval  time.Duration
	newTicker func(time.Duration) Ticker

	state    atomic.Int32
	inFlight atomic.Bool

	// base is cancelled by Close and bounds background refreshes.
	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	stop        chan struct{}
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewRefresher wires a refresher to store. Call Close when done.
func NewRefresher(api API, tokens TokenSource, store *Store, opts ...Option) *Refresher {
	base, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		api:      api,
		tokens:   tokens,
		store:    store,
		log:      logrus.StandardLogger(),
		interval: DefaultInterval,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{time.NewTicker(d)}
		},
		base:   base,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.unsubscribe = store.Subscribe(r.onSessionChange)
	if store.Current().Authenticated {
		r.Start()
	}
	return r
}

// State reports the current cycle state.
func (r *Refresher) State() State {
	return State(r.state.Load())
}

// Running reports whether the periodic timer is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

func (r *Refresher) setState(s State) {
	r.state.Store(int32(s))
	r.log.WithField("state", s).Debug("session refresher")
}

func (r *Refresher) onSessionChange(s Session) {
	if s.Authenticated {
		r.Start()
		return
	}
	r.Stop()
}

// Start begins the periodic timer. It is a no-op if already running or
// closed.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.stop != nil {
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	t := r.newTicker(r.interval)
	r.wg.Add(1)
	go r.loop(t, stop)
}

// Stop cancels the periodic timer. A refresh already in flight completes.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// Close stops the timer, aborts any refresh in flight and waits for every
// goroutine to exit.
func (r *Refresher) Close() {
	r.mu.Lock()
	r.closed = true
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.mu.Unlock()

	r.unsubscribe()
	r.cancel()
	r.wg.Wait()
}

func (r *Refresher) loop(t Ticker, stop <-chan struct{}) {
	defer r.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-r.base.Done():
			return
		case <-t.Chan():
			r.tick()
		}
	}
}

func (r *Refresher) tick() {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug("refresh in flight, tick dropped")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Store(false)
		r.refresh(r.base) //nolint:errcheck // failure already logged and applied to the store
	}()
}

// Refresh performs one refresh step now. It returns ErrInFlight without a
// request if another refresh is running.
func (r *Refresher) Refresh(ctx context.Context) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer r.inFlight.Store(false)
	return r.refresh(ctx)
}

// Bootstrap makes the single startup attempt to resume a session from
// stored cookies. On failure the session is logged out and not retried.
func (r *Refresher) Bootstrap(ctx context.Context) (Session, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return Session{}, ErrInFlight
	}
	defer r.inFlight.Store(false)

	gen := r.store.Generation()
	if err := r.renew(ctx); err != nil {
		return Session{}, r.fail(ctx, "session.Bootstrap", gen, err)
	}
	user, err := r.api.GetUserData(ctx)
	if err != nil {
		return Session{}, r.fail(ctx, "session.Bootstrap", gen, err)
	}
	s := r.store.LogIn(*user, ExpiryFromCookies(r.api.Cookies()))
	r.setState(StateIdle)
	r.log.WithField("user_id", user.ID).Info("session resumed")
	return s, nil
}

// refresh renews the login current when it starts. A result that arrives
// after that login ended is dropped.
func (r *Refresher) refresh(ctx context.Context) error {
	gen := r.store.Generation()
	if err := r.renew(ctx); err != nil {
		return r.fail(ctx, "session.Refresh", gen, err)
	}
	if !r.store.ExtendIf(gen, ExpiryFromCookies(r.api.Cookies())) {
		r.log.Debug("refresh finished after its session ended")
	}
	r.setState(StateIdle)
	return nil
}

func (r *Refresher) renew(ctx context.Context) error {
	r.setState(StateWaiting)
	tok, err := r.tokens.Token(ctx)
	if err != nil {
		return err
	}
	r.setState(StateRefreshing)
	_, err = r.api.Refresh(ctx, tok)
	return err
}

// fail applies a refresh failure to the login identified by gen. An aborted
// context leaves the session alone, as does a failure for a login that has
// since ended; anything else forces the logged-out state.
func (r *Refresher) fail(ctx context.Context, op string, gen uint64, err error) error {
	if ctx.Err() != nil {
		r.setState(StateIdle)
		return fmt.Errorf("%s: %w", op, err)
	}
	if r.store.Current().Authenticated && r.store.Generation() != gen {
		r.setState(StateIdle)
		r.log.WithError(err).Debug("refresh for an ended session failed, ignored")
		return fmt.Errorf("%s: %w", op, err)
	}
	r.setState(StateFailed)
	r.log.WithError(err).Warn("session refresh failed, logging out")
	r.store.LogOutIf(gen)
	return fmt.Errorf("%s: %w", op, err)
}
