// Package csrf caches the backend's anti-forgery token for the lifetime of
// the process. The token is fetched lazily and concurrent first callers share
// a single request.
package csrf

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable means no token could be obtained. Callers must not send a
// mutating request without one.
var ErrUnavailable = errors.New("csrf token unavailable")

var errEmptyToken = errors.New("empty csrf token")

// Fetcher performs the actual token request.
type Fetcher interface {
	FetchCSRFToken(ctx context.Context) (string, error)
}

// Cache is a write-once token cache.
type Cache struct {
	fetcher Fetcher
	log     logrus.FieldLogger
	group   singleflight.Group

	mu    sync.RWMutex
	token string
}

// New creates an empty cache backed by f.
func New(f Fetcher, log logrus.FieldLogger) *Cache {
	return &Cache{fetcher: f, log: log}
}

// Token returns the cached token, fetching it on first use. A failed fetch
// is not cached; the next call tries again.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok := c.cached(); tok != "" {
		return tok, nil
	}

	// The shared fetch must outlive any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("csrf", func() (any, error) {
		if tok := c.cached(); tok != "" {
			return tok, nil
		}
		tok, err := c.fetcher.FetchCSRFToken(fetchCtx)
		if err != nil {
			return "", err
		}
		if tok == "" {
			return "", errEmptyToken
		}
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", errors.Join(ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.log.WithError(res.Err).Warn("csrf token fetch failed")
			return "", errors.Join(ErrUnavailable, res.Err)
		}
		return res.Val.(string), nil
	}
}

// Reset drops the cached token so the next call fetches again.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Cache) cached() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
