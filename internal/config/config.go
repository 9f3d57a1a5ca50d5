// Package config loads florae settings from the environment. Values may also
// come from ~/.florae/config.env or ./.env; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL          = "http://localhost:8080"
	DefaultLogLevel        = "info"
	DefaultRefreshInterval = 13*time.Minute + 30*time.Second
	DefaultScanTimeout     = 30 * time.Second
	DefaultConnectTimeout  = 20 * time.Second
	DefaultKeyRevealTTL    = 900 * time.Second

	homeDirName     = ".florae"
	envFileName     = "config.env"
	sessionFileName = "session.json"
	logFileName     = "florae.log"
)

// Config holds every runtime setting.
type Config struct {
	APIURL          string
	WebSocketURL    string
	WebURL          string
	LogLevel        string
	Home            string
	RefreshInterval time.Duration
	ScanTimeout     time.Duration
	ConnectTimeout  time.Duration
	KeyRevealTTL    time.Duration
	RevokeOnFailure bool
}

// SessionFile is where session cookies are persisted between runs.
func (c Config) SessionFile() string {
	return filepath.Join(c.Home, sessionFileName)
}

// LogFile is the log destination.
func (c Config) LogFile() string {
	return filepath.Join(c.Home, logFileName)
}

// Load reads env files (if present) and then the environment.
func Load() (Config, error) {
	home, err := homeDir()
	if err != nil {
		return Config{}, err
	}
	// godotenv.Load never overrides variables that are already set.
	for _, f := range []string{filepath.Join(home, envFileName), ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config.Load: %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		APIURL:          strings.TrimRight(orDefault(getenv("FLORAE_API_URL"), DefaultAPIURL), "/"),
		LogLevel:        orDefault(getenv("FLORAE_LOG_LEVEL"), DefaultLogLevel),
		RefreshInterval: DefaultRefreshInterval,
		ScanTimeout:     DefaultScanTimeout,
		ConnectTimeout:  DefaultConnectTimeout,
		KeyRevealTTL:    DefaultKeyRevealTTL,
		RevokeOnFailure: true,
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("FLORAE_API_URL must be an absolute URL, got %q", cfg.APIURL)
	}

	cfg.WebSocketURL = getenv("FLORAE_WS_URL")
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = websocketURL(u)
	}
	cfg.WebURL = orDefault(getenv("FLORAE_WEB_URL"), cfg.APIURL)

	cfg.Home = getenv("FLORAE_HOME")
	if cfg.Home == "" {
		if cfg.Home, err = homeDir(); err != nil {
			return Config{}, err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"FLORAE_REFRESH_INTERVAL", &cfg.RefreshInterval},
		{"FLORAE_BLE_SCAN_TIMEOUT", &cfg.ScanTimeout},
		{"FLORAE_BLE_CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"FLORAE_KEY_REVEAL_TTL", &cfg.KeyRevealTTL},
	}
	for _, d := range durations {
		raw := getenv(d.name)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v <= 0 {
			return Config{}, fmt.Errorf("%s must be a positive duration, got %q", d.name, raw)
		}
		*d.dst = v
	}

	if raw := getenv("FLORAE_REVOKE_ON_FAILURE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("FLORAE_REVOKE_ON_FAILURE must be a boolean, got %q", raw)
		}
		cfg.RevokeOnFailure = v
	}

	return cfg, nil
}

func homeDir() (string, error) {
	if h := os.Getenv("FLORAE_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, homeDirName), nil
}

// websocketURL derives the fanout stream URL from the API URL.
func websocketURL(api *url.URL) string {
	ws := *api
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path = strings.TrimRight(ws.Path, "/") + "/ws/fanout"
	return ws.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
