package devserver

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dayfit/florae/pkg/client"
	"github.com/dayfit/florae/pkg/domain"
)

func (s *Server) handleUserData(c *gin.Context) {
	username := c.GetString(ctxUsername)
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	c.JSON(http.StatusOK, domain.UserData{ID: u.id, Username: u.username, Email: u.email})
}

func (s *Server) handlePlants(c *gin.Context) {
	username := c.GetString(ctxUsername)
	s.mu.Lock()
	plants := make([]domain.Plant, 0)
	for _, p := range s.plants {
		if p.Owner == username {
			plants = append(plants, *p)
		}
	}
	s.mu.Unlock()
	sort.Slice(plants, func(i, j int) bool { return plants[i].ID < plants[j].ID })
	c.JSON(http.StatusOK, plants)
}

func (s *Server) handleFloraLinks(c *gin.Context) {
	username := c.GetString(ctxUsername)
	s.mu.Lock()
	links := make([]domain.FloraLink, 0)
	for _, fl := range s.floraLinks {
		if fl.owner == username {
			links = append(links, fl.FloraLink)
		}
	}
	s.mu.Unlock()
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	c.JSON(http.StatusOK, links)
}

func (s *Server) handleGenerateKey(c *gin.Context) {
	var req client.GenerateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	plantID, err := strconv.Atoi(req.PlantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plant id"})
		return
	}

	username := c.GetString(ctxUsername)
	s.mu.Lock()
	p, ok := s.plants[plantID]
	s.mu.Unlock()
	if !ok || p.Owner != username {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
		return
	}

	key, err := randomToken(32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Key generation failed"})
		return
	}
	s.mu.Lock()
	s.keys[key] = &apiKey{owner: username, plantID: plantID}
	s.mu.Unlock()
	c.JSON(http.StatusOK, client.GenerateKeyResponse{APIKey: key})
}

func (s *Server) handleConnectKey(c *gin.Context) {
	key := c.GetHeader(apiKeyHeader)
	username := c.GetString(ctxUsername)
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok || k.owner != username {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid api key"})
		return
	}
	k.connected = true
	c.JSON(http.StatusOK, client.MessageResponse{Message: "API key connected successfully"})
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	key := c.Query("apiKey")
	username := c.GetString(ctxUsername)
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok || k.owner != username {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid api key"})
		return
	}
	delete(s.keys, key)
	c.JSON(http.StatusOK, client.MessageResponse{Message: "API key revoked successfully"})
}
