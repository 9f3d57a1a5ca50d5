package devserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dayfit/florae/internal/apikey"
	"github.com/dayfit/florae/internal/auth"
	"github.com/dayfit/florae/internal/csrf"
	"github.com/dayfit/florae/internal/devserver"
	"github.com/dayfit/florae/internal/logger"
	"github.com/dayfit/florae/internal/provision"
	"github.com/dayfit/florae/internal/session"
	"github.com/dayfit/florae/internal/telemetry"
	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

const strongPassword = "Glimmer!Fern7Moss"

type recordingDevice struct {
	err  error
	sent []domain.Credentials
}

func (d *recordingDevice) SendCredentials(_ context.Context, creds domain.Credentials) error {
	d.sent = append(d.sent, creds)
	return d.err
}

func newServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	cfg := devserver.DefaultConfig([]byte("test-secret"))
	cfg.BcryptCost = bcrypt.MinCost
	srv := devserver.New(cfg, logger.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

type stack struct {
	api    *client.Client
	tokens *csrf.Cache
	store  *session.Store
	auth   *auth.Client
	keys   *apikey.Issuer
}

func newStack(baseURL string) stack {
	api := client.New(baseURL)
	tokens := csrf.New(api, logger.Discard())
	store := session.NewStore()
	return stack{
		api:    api,
		tokens: tokens,
		store:  store,
		auth:   auth.New(api, tokens, store, logger.Discard()),
		keys:   apikey.New(api, tokens, logger.Discard()),
	}
}

func TestEndToEnd(t *testing.T) {
	srv, ts := newServer(t)
	st := newStack(ts.URL)
	ctx := context.Background()

	s, err := st.auth.Register(ctx, "alice@example.com", "alice", strongPassword)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if !s.Authenticated || s.User.Username != "alice" {
		t.Fatalf("session = %+v", s)
	}
	if s.ExpiresAt.IsZero() {
		t.Error("expiry not read from access token")
	}

	refresher := session.NewRefresher(st.api, st.tokens, st.store, session.WithLogger(logger.Discard()))
	defer refresher.Close()
	if err := refresher.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if !st.store.Current().Authenticated {
		t.Fatal("refresh logged the user out")
	}

	plant := srv.AddPlant("alice", "Fern", "Nephrolepis exaltata")
	plants, err := st.api.ListPlants(ctx)
	if err != nil || len(plants) != 1 || plants[0].ID != plant.ID {
		t.Fatalf("ListPlants() = %v, %v", plants, err)
	}

	// Transmission fails: the issued key must be revoked.
	failing := &recordingDevice{err: errors.New("gatt write failed")}
	o := provision.New(st.keys, failing, provision.WithLogger(logger.Discard()))
	req := provision.Request{SSID: "MyWifi", Password: "pass1234", PlantID: plant.PlantID()}
	if err := o.ProvisionDevice(ctx, req); !provision.IsKind(err, provision.KindTransmission) {
		t.Fatalf("ProvisionDevice() error = %v, want transmission failure", err)
	}
	if exists, _ := srv.KeyStatus(failing.sent[0].APIKey); exists {
		t.Error("orphaned key was not revoked")
	}

	// Retry succeeds with a new, activated key.
	dev := &recordingDevice{}
	o = provision.New(st.keys, dev, provision.WithLogger(logger.Discard()))
	if err := o.ProvisionDevice(ctx, req); err != nil {
		t.Fatalf("ProvisionDevice() error: %v", err)
	}
	key := dev.sent[0].APIKey
	if key == failing.sent[0].APIKey {
		t.Error("retry reused the revoked key")
	}
	if _, connected := srv.KeyStatus(key); !connected {
		t.Error("provisioned key is not activated")
	}

	link, err := srv.AttachDevice(key, "FloraLink-01")
	if err != nil {
		t.Fatalf("AttachDevice() error: %v", err)
	}
	links, err := st.api.ListFloraLinks(ctx)
	if err != nil || len(links) != 1 || links[0].ID != link.ID {
		t.Fatalf("ListFloraLinks() = %v, %v", links, err)
	}

	// Live readings reach the owner's stream.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/fanout"
	feed := telemetry.New(wsURL, st.api.Jar(), telemetry.WithLogger(logger.Discard()))
	feedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got := make(chan domain.Reading, 1)
	go feed.Run(feedCtx, func(r domain.Reading) { //nolint:errcheck
		select {
		case got <- r:
		default:
		}
	})
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var reading domain.Reading
wait:
	for {
		select {
		case reading = <-got:
			break wait
		case <-ticker.C:
			srv.Publish(domain.Reading{FloraLinkID: link.ID, Type: domain.SensorSoilMoisture, Value: 42})
		case <-feedCtx.Done():
			t.Fatal("no reading received")
		}
	}
	cancel()
	if reading.FloraLinkID != link.ID || reading.Value != 42 {
		t.Errorf("reading = %+v", reading)
	}

	st.auth.SignOut(ctx)
	if st.store.Current().Authenticated {
		t.Error("still authenticated after sign out")
	}
	if _, err := st.api.GetUserData(ctx); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("GetUserData() after sign out error = %v, want 401", err)
	}
}

func TestBootstrapFromSavedCookies(t *testing.T) {
	srv, ts := newServer(t)
	if err := srv.CreateUser("alice", "alice@example.com", strongPassword); err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}

	first := newStack(ts.URL)
	if _, err := first.auth.SignIn(context.Background(), "alice@example.com", strongPassword); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	// A new process starts with only the saved cookies.
	second := newStack(ts.URL)
	second.api.SetCookies(first.api.Cookies())
	r := session.NewRefresher(second.api, second.tokens, second.store, session.WithLogger(logger.Discard()))
	defer r.Close()

	s, err := r.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if !s.Authenticated || s.User.Email != "alice@example.com" {
		t.Errorf("session = %+v", s)
	}
	if !r.Running() {
		t.Error("refresh timer not started after bootstrap")
	}
}

func TestBootstrapWithoutCookiesLogsOut(t *testing.T) {
	_, ts := newServer(t)
	st := newStack(ts.URL)
	r := session.NewRefresher(st.api, st.tokens, st.store, session.WithLogger(logger.Discard()))
	defer r.Close()

	if _, err := r.Bootstrap(context.Background()); err == nil {
		t.Fatal("expected bootstrap to fail without a refresh token")
	}
	if r.State() != session.StateFailed || st.store.Current().Authenticated {
		t.Errorf("state = %v, authenticated = %v", r.State(), st.store.Current().Authenticated)
	}
}

func TestMutationsRequireCSRF(t *testing.T) {
	_, ts := newServer(t)
	api := client.New(ts.URL)

	err := api.Login(context.Background(), "", client.LoginRequest{Username: "alice", Password: "x"})
	if !client.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("Login() without token error = %v, want 403", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	srv, ts := newServer(t)
	if err := srv.CreateUser("alice", "alice@example.com", strongPassword); err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	st := newStack(ts.URL)
	_, err := st.auth.Register(context.Background(), "alice@example.com", "alice", strongPassword)
	if !errors.Is(err, auth.ErrRegistrationFailed) {
		t.Fatalf("Register() error = %v, want ErrRegistrationFailed", err)
	}
}

func TestSeedDevice(t *testing.T) {
	srv, ts := newServer(t)
	if err := srv.CreateUser("alice", "alice@example.com", strongPassword); err != nil {
		t.Fatal(err)
	}
	plant := srv.AddPlant("alice", "Fern", "")
	if _, err := srv.SeedDevice("bob", plant.ID, "FloraLink-x"); err == nil {
		t.Error("SeedDevice() for a plant owned by someone else should fail")
	}
	fl, err := srv.SeedDevice("alice", plant.ID, "FloraLink-1")
	if err != nil {
		t.Fatalf("SeedDevice() error: %v", err)
	}

	st := newStack(ts.URL)
	if _, err := st.auth.SignIn(context.Background(), "alice", strongPassword); err != nil {
		t.Fatal(err)
	}
	plants, err := st.api.ListPlants(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plants) != 1 || plants[0].LinkedFloraLink == nil || plants[0].LinkedFloraLink.ID != fl.ID {
		t.Errorf("plants = %+v, want linked to %d", plants, fl.ID)
	}
}
