package tui

import (
	"context"
	"time"

	"github.com/dayfit/florae/internal/provision"
	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/pkg/domain"
)

// Authenticator signs users in and out.
type Authenticator interface {
	SignIn(ctx context.Context, identifier, password string) (session.Session, error)
	Register(ctx context.Context, email, username, password string) (session.Session, error)
	SignOut(ctx context.Context)
}

// DataSource lists the user's records.
type DataSource interface {
	ListPlants(ctx context.Context) ([]domain.Plant, error)
	ListFloraLinks(ctx context.Context) ([]domain.FloraLink, error)
}

// KeyGenerator creates a key for the reveal screen.
type KeyGenerator interface {
	GenerateKey(ctx context.Context, plantID string) (string, error)
}

// Provisioner runs a provisioning attempt.
type Provisioner interface {
	ProvisionDevice(ctx context.Context, req provision.Request) error
}

// Services is everything the dashboard drives. Nil members disable the
// matching screens.
type Services struct {
	Auth      Authenticator
	Data      DataSource
	Keys      KeyGenerator
	Provision Provisioner
	// Session is the state at startup; later changes arrive as SessionMsg.
	Session session.Session
	WebURL  string
	KeyTTL  time.Duration
	// Now is replaced in tests.
	Now func() time.Time
}

// SessionMsg tells the dashboard the session changed.
type SessionMsg struct {
	Session session.Session
}

// ReadingMsg delivers one live sensor reading.
type ReadingMsg struct {
	Reading domain.Reading
}
