package devserver

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/dayfit/florae/pkg/client"
)

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Server) handleCSRF(c *gin.Context) {
	tok, err := randomToken(32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token generation failed"})
		return
	}
	s.mu.Lock()
	s.csrf[tok] = struct{}{}
	s.mu.Unlock()
	c.JSON(http.StatusOK, client.CSRFResponse{Token: tok, HeaderName: csrfHeader, ParameterName: "_csrf"})
}

// requireCSRF rejects mutating requests without a token issued by /csrf.
func (s *Server) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := c.GetHeader(csrfHeader)
		s.mu.Lock()
		_, ok := s.csrf[tok]
		s.mu.Unlock()
		if tok == "" || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(accessCookie)
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		username, err := s.parseAccessToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		c.Set(ctxUsername, username)
		c.Next()
	}
}

func (s *Server) issueAccessToken(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

func (s *Server) parseAccessToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.JWTSecret, nil
	}); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) setAccessCookie(c *gin.Context, username string) bool {
	tok, err := s.issueAccessToken(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token generation failed"})
		return false
	}
	c.SetCookie(accessCookie, tok, int(s.cfg.AccessTTL.Seconds()), "/", "", false, true)
	return true
}

func (s *Server) handleLogin(c *gin.Context) {
	var req client.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" || (req.Email == "") == (req.Username == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login request"})
		return
	}

	s.mu.Lock()
	u := s.userByIdentifier(req.Email, req.Username)
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if !s.setAccessCookie(c, u.username) {
		return
	}
	if req.GenerateRefreshToken {
		rt := ulid.Make().String()
		s.mu.Lock()
		s.refresh[rt] = refreshToken{username: u.username, expiresAt: s.now().Add(s.cfg.RefreshTTL)}
		s.mu.Unlock()
		c.SetCookie(refreshCookie, rt, int(s.cfg.RefreshTTL.Seconds()), "/", "", false, true)
	}
	c.JSON(http.StatusOK, client.MessageResponse{Message: "User logged in successfully"})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req client.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || !strings.Contains(req.Email, "@") || len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration request"})
		return
	}
	if err := s.CreateUser(req.Username, req.Email, req.Password); err != nil {
		if err == errUserExists {
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}
	c.JSON(http.StatusCreated, client.MessageResponse{Message: "User registered successfully"})
}

func (s *Server) handleRefresh(c *gin.Context) {
	rt, err := c.Cookie(refreshCookie)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token missing"})
		return
	}
	s.mu.Lock()
	entry, ok := s.refresh[rt]
	if ok && s.now().After(entry.expiresAt) {
		delete(s.refresh, rt)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	if !s.setAccessCookie(c, entry.username) {
		return
	}
	c.JSON(http.StatusOK, client.MessageResponse{Message: "Token refreshed"})
}

func (s *Server) handleLogout(c *gin.Context) {
	if rt, err := c.Cookie(refreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refresh, rt)
		s.mu.Unlock()
	}
	c.SetCookie(accessCookie, "", -1, "/", "", false, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, client.MessageResponse{Message: "Logged out"})
}
