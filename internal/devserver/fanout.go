package devserver

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/domain"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The client is a terminal program, not a browser page.
	CheckOrigin: func(*http.Request) bool { return true },
}

type subscriber struct {
	owner string
	conn  *websocket.Conn
	send  chan domain.Reading
}

// hub fans readings out to the owner's open streams.
type hub struct {
	log  logrus.FieldLogger
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{log: log, subs: make(map[*subscriber]struct{})}
}

func (h *hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(owner string, r domain.Reading) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.owner != owner {
			continue
		}
		select {
		case sub.send <- r:
		default:
			h.log.WithField("owner", owner).Debug("fanout subscriber slow, dropping reading")
		}
	}
}

func (s *Server) handleFanout(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Debug("fanout upgrade failed")
		return
	}
	sub := &subscriber{owner: c.GetString(ctxUsername), conn: conn, send: make(chan domain.Reading, sendBuffer)}
	s.hub.add(sub)

	go s.writePump(sub)
	// The stream is outbound only; reading just detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(sub)
}

func (s *Server) writePump(sub *subscriber) {
	defer sub.conn.Close() //nolint:errcheck
	for r := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := sub.conn.WriteJSON(r); err != nil {
			s.log.WithError(err).Debug("fanout write failed")
			return
		}
	}
}

// Simulate publishes a reading of every sensor type for every attached
// device on each tick until ctx ends.
func (s *Server) Simulate(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.mu.Lock()
			ids := make([]int, 0, len(s.floraLinks))
			for id := range s.floraLinks {
				ids = append(ids, id)
			}
			s.mu.Unlock()
			for _, id := range ids {
				for _, typ := range domain.SensorTypes {
					s.Publish(domain.Reading{FloraLinkID: id, Type: typ, Value: sample(typ), Timestamp: now})
				}
			}
		}
	}
}

func sample(sensorType string) float64 {
	switch sensorType {
	case domain.SensorSoilMoisture:
		return 30 + rand.Float64()*40
	case domain.SensorTemperature:
		return 18 + rand.Float64()*8
	case domain.SensorHumidity:
		return 40 + rand.Float64()*30
	case domain.SensorLightLux:
		return 200 + rand.Float64()*800
	default:
		return 0
	}
}
