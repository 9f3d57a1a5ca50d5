// Package auth signs users in and out of the Florae backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

var (
	// ErrTokenUnavailable means no anti-forgery token could be obtained, so
	// no request was sent.
	ErrTokenUnavailable = errors.New("security token unavailable, try again")
	// ErrInvalidCredentials covers every login failure. It never says which
	// credential was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRegistrationFailed = errors.New("registration failed")
)

const logoutTimeout = 5 * time.Second

// API is the subset of the backend client used for authentication.
type API interface {
	Login(ctx context.Context, csrfToken string, req client.LoginRequest) error
	Register(ctx context.Context, csrfToken string, req client.RegisterRequest) error
	Logout(ctx context.Context, csrfToken string) error
	GetUserData(ctx context.Context) (*domain.UserData, error)
	Cookies() []*http.Cookie
	ClearCookies()
}

// TokenSource supplies the anti-forgery token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client performs sign-in, registration and sign-out against the store.
type Client struct {
	api    API
	tokens TokenSource
	store  *session.Store
	log    logrus.FieldLogger
}

// New creates an auth client.
func New(api API, tokens TokenSource, store *session.Store, log logrus.FieldLogger) *Client {
	return &Client{api: api, tokens: tokens, store: store, log: log}
}

// SignIn validates the form, logs in and loads the profile. Validation
// problems come back as domain.FieldErrors before any request is made.
func (c *Client) SignIn(ctx context.Context, identifier, password string) (session.Session, error) {
	if errs := ValidateSignIn(identifier, password); errs != nil {
		return session.Session{}, errs
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.WithError(err).Debug("sign in: no csrf token")
		return session.Session{}, fmt.Errorf("auth.SignIn: %w", ErrTokenUnavailable)
	}

	req := client.LoginRequest{Password: password, GenerateRefreshToken: true}
	kind := Classify(identifier)
	if kind == IdentifierEmail {
		req.Email = identifier
	} else {
		req.Username = identifier
	}

	if err := c.api.Login(ctx, tok, req); err != nil {
		c.log.WithError(err).WithField("identifier_kind", kind).Debug("login rejected")
		return session.Session{}, fmt.Errorf("auth.SignIn: %w", ErrInvalidCredentials)
	}

	user, err := c.api.GetUserData(ctx)
	if err != nil {
		c.log.WithError(err).Debug("profile fetch after login failed")
		return session.Session{}, fmt.Errorf("auth.SignIn: %w", ErrInvalidCredentials)
	}

	s := c.store.LogIn(*user, session.ExpiryFromCookies(c.api.Cookies()))
	c.log.WithField("user_id", user.ID).Info("signed in")
	return s, nil
}

// Register creates the account and then signs in with the same credentials.
func (c *Client) Register(ctx context.Context, email, username, password string) (session.Session, error) {
	if errs := ValidateRegistration(email, username, password); errs != nil {
		return session.Session{}, errs
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.WithError(err).Debug("register: no csrf token")
		return session.Session{}, fmt.Errorf("auth.Register: %w", ErrTokenUnavailable)
	}

	req := client.RegisterRequest{Username: username, Email: email, Password: password}
	if err := c.api.Register(ctx, tok, req); err != nil {
		c.log.WithError(err).Debug("registration rejected")
		return session.Session{}, fmt.Errorf("auth.Register: %w", ErrRegistrationFailed)
	}
	c.log.Info("account registered")

	s, err := c.SignIn(ctx, username, password)
	if err != nil {
		return session.Session{}, fmt.Errorf("auth.Register: %w", err)
	}
	return s, nil
}

// SignOut ends the session locally, then tells the backend. The backend
// call is best effort; its failure is only logged.
func (c *Client) SignOut(ctx context.Context) {
	c.store.LogOut()
	defer c.api.ClearCookies()

	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.WithError(err).Warn("logout: no csrf token, skipping backend call")
		return
	}
	if err := c.api.Logout(ctx, tok); err != nil {
		c.log.WithError(err).Warn("logout request failed")
		return
	}
	c.log.Info("signed out")
}
