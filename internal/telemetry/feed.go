// Package telemetry subscribes to the live sensor fanout stream.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/domain"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Handler receives every decoded reading.
type Handler func(domain.Reading)

// Option configures a Feed.
type Option func(*Feed)

// WithBackoff sets the reconnect delay range.
func WithBackoff(initial, ceiling time.Duration) Option {
	return func(f *Feed) {
		f.minBackoff = initial
		f.maxBackoff = ceiling
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Feed) { f.log = l }
}

// Feed is a reconnecting subscription to the fanout stream. Session cookies
// come from the jar shared with the API client.
type Feed struct {
	url        string
	dialer     *websocket.Dialer
	log        logrus.FieldLogger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// New creates a Feed for wsURL.
func New(wsURL string, jar http.CookieJar, opts ...Option) *Feed {
	f := &Feed{
		url: wsURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			Jar:              jar,
		},
		log:        logrus.StandardLogger(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run delivers readings to handle until ctx ends, reconnecting with capped
// exponential backoff. It returns ctx.Err().
func (f *Feed) Run(ctx context.Context, handle Handler) error {
	backoff := f.minBackoff
	for {
		connected, err := f.stream(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.minBackoff
		}
		f.log.WithError(err).WithField("retry_in", backoff).Debug("telemetry stream closed")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// stream runs one connection. connected reports whether the handshake
// succeeded.
func (f *Feed) stream(ctx context.Context, handle Handler) (connected bool, err error) {
	conn, resp, err := f.dialer.DialContext(ctx, f.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck
	}
	if err != nil {
		return false, fmt.Errorf("telemetry.dial: %w", err)
	}
	defer conn.Close() //nolint:errcheck
	f.log.WithField("url", f.url).Info("telemetry stream connected")

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close() //nolint:errcheck
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("telemetry.read: %w", err)
		}
		readings, err := Decode(data)
		if err != nil {
			f.log.WithError(err).Warn("dropping malformed telemetry message")
			continue
		}
		for _, r := range readings {
			handle(r)
		}
	}
}

// Decode accepts a single reading or an array of readings.
func Decode(data []byte) ([]domain.Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty message")
	}
	if data[0] == '[' {
		var rs []domain.Reading
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("decode readings: %w", err)
		}
		return rs, nil
	}
	var r domain.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}
	if r.Type == "" {
		return nil, errors.New("reading without sensor type")
	}
	return []domain.Reading{r}, nil
}
