// Package session holds the client's view of the authenticated session and
// keeps it alive with periodic refreshes.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dayfit/florae/pkg/domain"
)

// AccessTokenCookie is the cookie carrying the short-lived JWT.
const AccessTokenCookie = "accessToken"

// Session is a snapshot of the authentication state.
type Session struct {
	Authenticated bool
	User          domain.UserData
	// ExpiresAt is the access token expiry, zero when unknown.
	ExpiresAt time.Time
}

// Listener is called after every session change with the new snapshot.
type Listener func(Session)

// Store owns the current Session. Every other component reads through
// Current and mutates through LogIn, Extend and LogOut.
type Store struct {
	mu        sync.RWMutex
	current   Session
	listeners map[int]Listener
	nextID    int
	// gen counts logins; it tells one authenticated session from the next.
	gen uint64
}

// NewStore returns a logged-out store.
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Current returns a snapshot of the session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Generation identifies the current login. It changes on every LogIn.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// LogIn replaces the session with an authenticated one.
func (s *Store) LogIn(user domain.UserData, expiresAt time.Time) Session {
	next := Session{Authenticated: true, User: user, ExpiresAt: expiresAt}
	s.mu.Lock()
	s.gen++
	s.current = next
	ls := s.snapshotListeners()
	s.mu.Unlock()
	notify(ls, next)
	return next
}

// Extend records a new access token expiry. It is a no-op when logged out.
func (s *Store) Extend(expiresAt time.Time) {
	s.extend(expiresAt, func() bool { return true })
}

// ExtendIf is Extend limited to the login identified by gen.
func (s *Store) ExtendIf(gen uint64, expiresAt time.Time) bool {
	return s.extend(expiresAt, func() bool { return s.gen == gen })
}

func (s *Store) extend(expiresAt time.Time, match func() bool) bool {
	s.mu.Lock()
	if !s.current.Authenticated || !match() {
		s.mu.Unlock()
		return false
	}
	s.current.ExpiresAt = expiresAt
	snap := s.current
	ls := s.snapshotListeners()
	s.mu.Unlock()
	notify(ls, snap)
	return true
}

// LogOut clears the session.
func (s *Store) LogOut() {
	s.logOut(func() bool { return true })
}

// LogOutIf clears the session only while the login identified by gen is
// still current. It reports whether it logged out.
func (s *Store) LogOutIf(gen uint64) bool {
	return s.logOut(func() bool { return s.gen == gen })
}

// match is called with mu held.
func (s *Store) logOut(match func() bool) bool {
	s.mu.Lock()
	if !s.current.Authenticated || !match() {
		s.mu.Unlock()
		return false
	}
	s.current = Session{}
	ls := s.snapshotListeners()
	s.mu.Unlock()
	notify(ls, Session{})
	return true
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// snapshotListeners must be called with mu held.
func (s *Store) snapshotListeners() []Listener {
	ls := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		ls = append(ls, fn)
	}
	return ls
}

func notify(ls []Listener, snap Session) {
	for _, fn := range ls {
		fn(snap)
	}
}

// ExpiryFromCookies reads the exp claim of the access token cookie. The
// signature is not checked; the value is only used for display and timing.
func ExpiryFromCookies(cookies []*http.Cookie) time.Time {
	for _, c := range cookies {
		if c.Name != AccessTokenCookie || c.Value == "" {
			continue
		}
		var claims jwt.RegisteredClaims
		if _, _, err := new(jwt.Parser).ParseUnverified(c.Value, &claims); err != nil {
			return time.Time{}
		}
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return time.Time{}
}
