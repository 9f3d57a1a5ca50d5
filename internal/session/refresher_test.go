package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dayfit/florae/internal/logger"
	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

type fakeTokens struct {
	err error
}

func (f fakeTokens) Token(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok1", nil
}

// fakeAPI records refresh calls. When block is non-nil every refresh waits
// on it.
type fakeAPI struct {
	refreshCalls atomic.Int32
	refreshErr   error
	userErr      error
	block        chan struct{}
	started      chan struct{}
	startOnce    sync.Once
}

func (f *fakeAPI) Refresh(ctx context.Context, csrf string) (*client.MessageResponse, error) {
	f.refreshCalls.Add(1)
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &client.MessageResponse{Message: "Token refreshed"}, nil
}

func (f *fakeAPI) GetUserData(context.Context) (*domain.UserData, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &domain.UserData{ID: 1, Name: "Alice"}, nil
}

func (f *fakeAPI) Cookies() []*http.Cookie { return nil }

// manualTicker delivers ticks only when the test sends them.
type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) Chan() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()                  { m.stopped.Store(true) }

func newManual() (*manualTicker, Option) {
	m := &manualTicker{c: make(chan time.Time)}
	return m, WithTicker(func(time.Duration) Ticker { return m })
}

func TestBootstrap_Success(t *testing.T) {
	store := NewStore()
	r := NewRefresher(&fakeAPI{}, fakeTokens{}, store, WithLogger(logger.Discard()))
	defer r.Close()

	s, err := r.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if !s.Authenticated || s.User.Name != "Alice" {
		t.Errorf("session = %+v", s)
	}
	if !r.Running() {
		t.Error("timer should start once the session is authenticated")
	}
	if r.State() != StateIdle {
		t.Errorf("State() = %v, want idle", r.State())
	}
}

func TestBootstrap_Failures(t *testing.T) {
	tests := []struct {
		name   string
		tokens fakeTokens
		api    *fakeAPI
	}{
		{"no csrf token", fakeTokens{err: errors.New("down")}, &fakeAPI{}},
		{"refresh rejected", fakeTokens{}, &fakeAPI{refreshErr: &client.HTTPError{StatusCode: 401}}},
		{"profile rejected", fakeTokens{}, &fakeAPI{userErr: &client.HTTPError{StatusCode: 401}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			r := NewRefresher(tt.api, tt.tokens, store, WithLogger(logger.Discard()))
			defer r.Close()

			if _, err := r.Bootstrap(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			if store.Current().Authenticated {
				t.Error("session should be logged out")
			}
			if r.State() != StateFailed {
				t.Errorf("State() = %v, want failed", r.State())
			}
			if r.Running() {
				t.Error("timer must not run without a session")
			}
		})
	}
}

func TestRefresh_FailureLogsOutAndStopsTimer(t *testing.T) {
	store := NewStore()
	api := &fakeAPI{refreshErr: &client.HTTPError{StatusCode: 401, Message: "Invalid refresh token"}}
	r := NewRefresher(api, fakeTokens{}, store, WithLogger(logger.Discard()))
	defer r.Close()

	store.LogIn(domain.UserData{ID: 1}, time.Time{})
	if !r.Running() {
		t.Fatal("login should start the timer")
	}

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if store.Current().Authenticated {
		t.Error("refresh failure must force logged-out state")
	}
	if r.Running() {
		t.Error("logout should stop the timer")
	}
}

func TestRefresh_StaleFailureKeepsNextSession(t *testing.T) {
	store := NewStore()
	api := &fakeAPI{
		refreshErr: &client.HTTPError{StatusCode: 401, Message: "Invalid refresh token"},
		block:      make(chan struct{}),
		started:    make(chan struct{}),
	}
	ticker, opt := newManual()
	r := NewRefresher(api, fakeTokens{}, store, opt, WithLogger(logger.Discard()))
	defer r.Close()

	store.LogIn(domain.UserData{ID: 1, Name: "Alice"}, time.Time{})
	ticker.c <- time.Now()
	<-api.started

	store.LogOut()
	store.LogIn(domain.UserData{ID: 2, Name: "Bob"}, time.Time{})
	close(api.block)

	deadline := time.Now().Add(2 * time.Second)
	for r.inFlight.Load() {
		if time.Now().After(deadline) {
			t.Fatal("refresh did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := store.Current()
	if !s.Authenticated || s.User.Name != "Bob" {
		t.Errorf("session = %+v, want Bob still signed in", s)
	}
	if r.State() == StateFailed {
		t.Error("State() = failed for a refresh of an ended session")
	}
	if !r.Running() {
		t.Error("timer stopped for the new session")
	}
}

func TestRefresh_CoalescesTicks(t *testing.T) {
	store := NewStore()
	api := &fakeAPI{block: make(chan struct{}), started: make(chan struct{})}
	ticker, opt := newManual()
	r := NewRefresher(api, fakeTokens{}, store, opt, WithLogger(logger.Discard()))

	store.LogIn(domain.UserData{ID: 1}, time.Time{})

	ticker.c <- time.Now()
	<-api.started
	// Both sends complete only after the loop took them; the first of them
	// has been fully handled while the refresh is still pending.
	ticker.c <- time.Now()
	ticker.c <- time.Now()

	if err := r.Refresh(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("Refresh() during flight = %v, want ErrInFlight", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := api.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls while pending = %d, want 1", got)
	}

	close(api.block)
	r.Close()
	if !ticker.stopped.Load() {
		t.Error("ticker not stopped on Close")
	}
	if !store.Current().Authenticated {
		t.Error("successful refresh must keep the session")
	}
}

func TestClose_AbortsInFlightWithoutLogout(t *testing.T) {
	store := NewStore()
	api := &fakeAPI{block: make(chan struct{}), started: make(chan struct{})}
	ticker, opt := newManual()
	r := NewRefresher(api, fakeTokens{}, store, opt, WithLogger(logger.Discard()))

	store.LogIn(domain.UserData{ID: 1}, time.Time{})
	ticker.c <- time.Now()
	<-api.started

	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if !store.Current().Authenticated {
		t.Error("shutdown must not log the user out")
	}
	if r.Running() {
		t.Error("timer still running after Close")
	}

	// A closed refresher ignores later logins.
	store.LogOut()
	store.LogIn(domain.UserData{ID: 1}, time.Time{})
	if r.Running() {
		t.Error("closed refresher restarted its timer")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateWaiting, "waiting"},
		{StateRefreshing, "refreshing"},
		{StateFailed, "failed"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
