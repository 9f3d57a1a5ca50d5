package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dayfit/florae/pkg/domain"
)

func TestFetchCSRFToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathCSRF {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(CSRFResponse{Token: "tok1", HeaderName: HeaderCSRF}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL)
	tok, err := c.FetchCSRFToken(context.Background())
	if err != nil {
		t.Fatalf("FetchCSRFToken() error: %v", err)
	}
	if tok != "tok1" {
		t.Errorf("token = %q, want %q", tok, "tok1")
	}
}

func TestFetchCSRFToken_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(CSRFResponse{}) //nolint:errcheck
	}))
	defer srv.Close()

	if _, err := New(srv.URL).FetchCSRFToken(context.Background()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLogin_SendsCSRFHeaderAndSingleIdentifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathLogin {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(HeaderCSRF) != "tok1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get(HeaderRequestID) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "a", Path: "/"})
		json.NewEncoder(w).Encode(MessageResponse{Message: "User logged in successfully"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Login(context.Background(), "tok1", LoginRequest{
		Username:             "alice",
		Password:             "correct",
		GenerateRefreshToken: true,
	})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if _, ok := got["email"]; ok {
		t.Errorf("body contains email key: %v", got)
	}
	if got["username"] != "alice" {
		t.Errorf("username = %v, want alice", got["username"])
	}
	if got["generateRefreshToken"] != true {
		t.Errorf("generateRefreshToken = %v, want true", got["generateRefreshToken"])
	}

	cookies := c.Cookies()
	if len(cookies) != 1 || cookies[0].Name != "accessToken" {
		t.Errorf("cookies = %v, want accessToken", cookies)
	}
}

func TestGetUserData_SendsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("accessToken"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "User not authenticated"}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(domain.UserData{ID: 1, Name: "Alice"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.GetUserData(context.Background()); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("GetUserData() without cookie error = %v, want 401", err)
	}

	c.SetCookies([]*http.Cookie{{Name: "accessToken", Value: "a"}})
	u, err := c.GetUserData(context.Background())
	if err != nil {
		t.Fatalf("GetUserData() error: %v", err)
	}
	if u.ID != 1 || u.Name != "Alice" {
		t.Errorf("user = %+v, want id 1 Alice", u)
	}
}

func TestClearCookies(t *testing.T) {
	c := New("http://florae.test")
	c.SetCookies([]*http.Cookie{{Name: "accessToken", Value: "a"}, {Name: "refreshToken", Value: "r"}})
	if len(c.Cookies()) != 2 {
		t.Fatalf("expected 2 cookies before clear, got %d", len(c.Cookies()))
	}
	c.ClearCookies()
	if n := len(c.Cookies()); n != 0 {
		t.Errorf("expected no cookies after clear, got %d", n)
	}
}

func TestGenerateAndConnectKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathGenerateKey:
			var req GenerateKeyRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlantID != "plant-42" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(GenerateKeyResponse{APIKey: "k1"}) //nolint:errcheck
		case PathConnectAPI:
			if r.Header.Get(HeaderAPIKey) != "k1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(MessageResponse{Message: "ok"}) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	key, err := c.GenerateKey(context.Background(), "tok", "plant-42")
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if key != "k1" {
		t.Errorf("key = %q, want k1", key)
	}
	if err := c.ConnectAPI(context.Background(), "tok", key); err != nil {
		t.Fatalf("ConnectAPI() error: %v", err)
	}
}

func TestRevokeKey_QueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Query().Get("apiKey") != "k1" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid api key"}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(MessageResponse{Message: "API key revoked successfully"}) //nolint:errcheck
	}))
	defer srv.Close()

	if err := New(srv.URL).RevokeKey(context.Background(), "tok", "k1"); err != nil {
		t.Fatalf("RevokeKey() error: %v", err)
	}
}

func TestListPlants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathPlants {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]domain.Plant{ //nolint:errcheck
			{ID: 1, Name: "Fern"},
			{ID: 2, Name: "Monstera", LinkedFloraLink: &domain.FloraLink{ID: 7, Name: "FloraLink-7"}},
		})
	}))
	defer srv.Close()

	plants, err := New(srv.URL).ListPlants(context.Background())
	if err != nil {
		t.Fatalf("ListPlants() error: %v", err)
	}
	if len(plants) != 2 {
		t.Fatalf("got %d plants, want 2", len(plants))
	}
	if plants[1].LinkedFloraLink == nil || plants[1].LinkedFloraLink.ID != 7 {
		t.Errorf("plants[1].LinkedFloraLink = %+v, want id 7", plants[1].LinkedFloraLink)
	}
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom"}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetUserData(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if got := err.Error(); !strings.Contains(got, "boom") {
		t.Errorf("error = %q, want it to contain 'boom'", got)
	}
	if IsAuthFailure(err) {
		t.Error("IsAuthFailure() = true for a 500")
	}
}

func TestDoRequest_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Second)
		json.NewEncoder(w).Encode(domain.UserData{}) //nolint:errcheck
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(srv.URL).GetUserData(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
