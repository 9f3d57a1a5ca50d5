package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/domain"
)

// Header names understood by the Florae backend.
const (
	HeaderCSRF      = "X-XSRF-TOKEN"
	HeaderAPIKey    = "X-API-KEY"
	HeaderRequestID = "X-Request-ID"
)

// Endpoint paths.
const (
	PathCSRF        = "/csrf"
	PathLogin       = "/auth/login"
	PathRegister    = "/auth/register"
	PathRefresh     = "/auth/refresh"
	PathLogout      = "/auth/logout"
	PathUserData    = "/api/v1/get-user-data"
	PathGenerateKey = "/api/v1/generate-key"
	PathConnectAPI  = "/api/v1/connect-api"
	PathRevokeKey   = "/api/v1/revoke-key"
	PathPlants      = "/api/v1/plants"
	PathFloraLinks  = "/api/v1/get-floralinks"
)

// CSRFResponse is the body of GET /csrf.
type CSRFResponse struct {
	Token         string `json:"token"`
	HeaderName    string `json:"headerName,omitempty"`
	ParameterName string `json:"parameterName,omitempty"`
}

// LoginRequest is the payload for POST /auth/login. Exactly one of Email
// or Username is set.
type LoginRequest struct {
	Email                string `json:"email,omitempty"`
	Username             string `json:"username,omitempty"`
	Password             string `json:"password"`
	GenerateRefreshToken bool   `json:"generateRefreshToken"`
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is the generic {"message": ...} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// GenerateKeyRequest is the payload for POST /api/v1/generate-key.
type GenerateKeyRequest struct {
	PlantID string `json:"plantId"`
}

// GenerateKeyResponse carries the freshly generated key. It is returned once.
type GenerateKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// Client is the Florae API client. Session state lives in the cookie jar;
// mutating calls take the anti-forgery token from the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithCookieJar replaces the default in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) { c.httpClient.Jar = jar }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a new API client.
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // only fails on a bad PublicSuffixList
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		log: silent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Jar returns the cookie jar holding the session cookies.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Cookies returns the cookies the jar would send to the API root.
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil || c.httpClient.Jar == nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// SetCookies stores cookies for the API root, e.g. when restoring a session.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil || c.httpClient.Jar == nil {
		return
	}
	c.httpClient.Jar.SetCookies(u, cookies)
}

// ClearCookies expires every cookie held for the API root.
func (c *Client) ClearCookies() {
	current := c.Cookies()
	if len(current) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(current))
	for _, ck := range current {
		expired = append(expired, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}
	c.SetCookies(expired)
}

// FetchCSRFToken fetches a fresh anti-forgery token.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	var resp CSRFResponse
	if err := c.get(ctx, PathCSRF, &resp); err != nil {
		return "", fmt.Errorf("client.FetchCSRFToken: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("client.FetchCSRFToken: empty token")
	}
	return resp.Token, nil
}

// Login exchanges credentials for session cookies.
func (c *Client) Login(ctx context.Context, csrfToken string, req LoginRequest) error {
	if err := c.doRequest(ctx, http.MethodPost, PathLogin, csrfHeader(csrfToken), req, nil); err != nil {
		return fmt.Errorf("client.Login: %w", err)
	}
	return nil
}

// Register creates a new account. It does not log the user in.
func (c *Client) Register(ctx context.Context, csrfToken string, req RegisterRequest) error {
	if err := c.doRequest(ctx, http.MethodPost, PathRegister, csrfHeader(csrfToken), req, nil); err != nil {
		return fmt.Errorf("client.Register: %w", err)
	}
	return nil
}

// Refresh renews the access token cookie using the refresh token cookie.
func (c *Client) Refresh(ctx context.Context, csrfToken string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPost, PathRefresh, csrfHeader(csrfToken), struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("client.Refresh: %w", err)
	}
	return &resp, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context, csrfToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, PathLogout, csrfHeader(csrfToken), struct{}{}, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	return nil
}

// GetUserData returns the authenticated user's profile.
func (c *Client) GetUserData(ctx context.Context) (*domain.UserData, error) {
	var u domain.UserData
	if err := c.get(ctx, PathUserData, &u); err != nil {
		return nil, fmt.Errorf("client.GetUserData: %w", err)
	}
	return &u, nil
}

// GenerateKey asks the backend for a new API key bound to plantID.
func (c *Client) GenerateKey(ctx context.Context, csrfToken, plantID string) (string, error) {
	var resp GenerateKeyResponse
	req := GenerateKeyRequest{PlantID: plantID}
	if err := c.doRequest(ctx, http.MethodPost, PathGenerateKey, csrfHeader(csrfToken), req, &resp); err != nil {
		return "", fmt.Errorf("client.GenerateKey: %w", err)
	}
	if resp.APIKey == "" {
		return "", fmt.Errorf("client.GenerateKey: empty key in response")
	}
	return resp.APIKey, nil
}

// ConnectAPI marks apiKey as connected so the device may report with it.
func (c *Client) ConnectAPI(ctx context.Context, csrfToken, apiKey string) error {
	hdr := csrfHeader(csrfToken)
	hdr.Set(HeaderAPIKey, apiKey)
	if err := c.doRequest(ctx, http.MethodPost, PathConnectAPI, hdr, struct{}{}, nil); err != nil {
		return fmt.Errorf("client.ConnectAPI: %w", err)
	}
	return nil
}

// RevokeKey revokes apiKey.
func (c *Client) RevokeKey(ctx context.Context, csrfToken, apiKey string) error {
	params := url.Values{}
	params.Set("apiKey", apiKey)
	if err := c.doRequest(ctx, http.MethodDelete, PathRevokeKey+"?"+params.Encode(), csrfHeader(csrfToken), nil, nil); err != nil {
		return fmt.Errorf("client.RevokeKey: %w", err)
	}
	return nil
}

// ListPlants returns the user's plants.
func (c *Client) ListPlants(ctx context.Context) ([]domain.Plant, error) {
	var plants []domain.Plant
	if err := c.get(ctx, PathPlants, &plants); err != nil {
		return nil, fmt.Errorf("client.ListPlants: %w", err)
	}
	return plants, nil
}

// ListFloraLinks returns the user's provisioned devices.
func (c *Client) ListFloraLinks(ctx context.Context) ([]domain.FloraLink, error) {
	var links []domain.FloraLink
	if err := c.get(ctx, PathFloraLinks, &links); err != nil {
		return nil, fmt.Errorf("client.ListFloraLinks: %w", err)
	}
	return links, nil
}

func csrfHeader(token string) http.Header {
	hdr := http.Header{}
	if token != "" {
		hdr.Set(HeaderCSRF, token)
	}
	return hdr
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, hdr http.Header, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)

	// Only method and path are logged: query strings may carry keys.
	entry := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       req.URL.Path,
		"request_id": requestID,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.WithError(err).Debug("api request failed")
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	entry.WithField("status", resp.StatusCode).Debug("api request")

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
