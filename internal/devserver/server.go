// Package devserver is an in-memory stand-in for the Florae backend. It
// speaks the same cookie, anti-forgery and JSON contracts so the client can
// be run and tested without the real service.
package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/dayfit/florae/pkg/domain"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
	csrfHeader    = "X-XSRF-TOKEN"
	apiKeyHeader  = "X-API-KEY"

	ctxUsername = "username"
)

// Config tunes token lifetimes.
type Config struct {
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost is lowered in tests.
	BcryptCost int
}

// DefaultConfig mirrors the production token lifetimes.
func DefaultConfig(secret []byte) Config {
	return Config{
		JWTSecret:  secret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

var errUserExists = errors.New("user already exists")

type user struct {
	id           int64
	username     string
	email        string
	passwordHash []byte
}

type refreshToken struct {
	username  string
	expiresAt time.Time
}

type apiKey struct {
	owner     string
	plantID   int
	connected bool
}

type floraLink struct {
	domain.FloraLink
	owner   string
	plantID int
}

// Server holds every account, plant and key in memory.
type Server struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	mu         sync.Mutex
	users      map[string]*user
	emails     map[string]string
	refresh    map[string]refreshToken
	csrf       map[string]struct{}
	keys       map[string]*apiKey
	plants     map[int]*domain.Plant
	floraLinks map[int]*floraLink
	nextUserID int64
	nextPlant  int
	nextLink   int

	hub *hub
}

// New creates an empty server.
func New(cfg Config, log logrus.FieldLogger) *Server {
	return &Server{
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		users:      make(map[string]*user),
		emails:     make(map[string]string),
		refresh:    make(map[string]refreshToken),
		csrf:       make(map[string]struct{}),
		keys:       make(map[string]*apiKey),
		plants:     make(map[int]*domain.Plant),
		floraLinks: make(map[int]*floraLink),
		hub:        newHub(log),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/csrf", s.handleCSRF)

	authGroup := r.Group("/auth", s.requireCSRF())
	{
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.POST("/logout", s.handleLogout)
	}

	v1 := r.Group("/api/v1", s.requireAuth())
	{
		v1.GET("/get-user-data", s.handleUserData)
		v1.GET("/plants", s.handlePlants)
		v1.GET("/get-floralinks", s.handleFloraLinks)
		v1.POST("/generate-key", s.requireCSRF(), s.handleGenerateKey)
		v1.POST("/connect-api", s.requireCSRF(), s.handleConnectKey)
		v1.DELETE("/revoke-key", s.requireCSRF(), s.handleRevokeKey)
	}

	r.GET("/ws/fanout", s.requireAuth(), s.handleFanout)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("devserver request")
	}
}

// CreateUser adds an account directly, bypassing the API.
func (s *Server) CreateUser(username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("devserver.CreateUser: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return errUserExists
	}
	if _, ok := s.emails[email]; ok {
		return errUserExists
	}
	s.nextUserID++
	s.users[username] = &user{id: s.nextUserID, username: username, email: email, passwordHash: hash}
	s.emails[email] = username
	return nil
}

// AddPlant stores a plant for owner and returns it with its id.
func (s *Server) AddPlant(owner, name, species string) domain.Plant {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPlant++
	p := &domain.Plant{ID: s.nextPlant, Owner: owner, Name: name, SpeciesName: species}
	s.plants[p.ID] = p
	return *p
}

// AttachDevice registers a FloraLink that has come online with key. The
// key must have been activated.
func (s *Server) AttachDevice(key, name string) (domain.FloraLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok || !k.connected {
		return domain.FloraLink{}, errors.New("unknown or inactive api key")
	}
	s.nextLink++
	fl := &floraLink{
		FloraLink: domain.FloraLink{ID: s.nextLink, Name: name},
		owner:     k.owner,
		plantID:   k.plantID,
	}
	s.floraLinks[fl.ID] = fl
	if p, ok := s.plants[k.plantID]; ok {
		link := fl.FloraLink
		p.LinkedFloraLink = &link
	}
	return fl.FloraLink, nil
}

// KeyStatus reports whether key exists and whether it has been activated.
func (s *Server) KeyStatus(key string) (exists, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok {
		return false, false
	}
	return true, k.connected
}

// Publish sends a reading to every fanout subscriber owning its device.
func (s *Server) Publish(r domain.Reading) {
	s.mu.Lock()
	fl, ok := s.floraLinks[r.FloraLinkID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.hub.broadcast(fl.owner, r)
}

func (s *Server) userByIdentifier(email, username string) *user {
	if username == "" {
		username = s.emails[email]
	}
	return s.users[username]
}

// SeedDevice issues an activated key for plantID and attaches a device with
// it, as if a FloraLink had been provisioned earlier.
func (s *Server) SeedDevice(owner string, plantID int, name string) (domain.FloraLink, error) {
	key, err := randomToken(32)
	if err != nil {
		return domain.FloraLink{}, fmt.Errorf("devserver.SeedDevice: %w", err)
	}
	s.mu.Lock()
	p, ok := s.plants[plantID]
	if !ok || p.Owner != owner {
		s.mu.Unlock()
		return domain.FloraLink{}, fmt.Errorf("devserver.SeedDevice: plant %d not owned by %s", plantID, owner)
	}
	s.keys[key] = &apiKey{owner: owner, plantID: plantID, connected: true}
	s.mu.Unlock()
	return s.AttachDevice(key, name)
}
