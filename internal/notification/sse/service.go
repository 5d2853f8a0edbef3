// Package sse streams VIP alert activity to open admin dashboards.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"concierge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EventType string

const (
	EventVIPAlertCreated       EventType = "vip_alert_created"
	EventVIPAlertStatusChanged EventType = "vip_alert_status_changed"
)

const (
	// per-connection queue; a full queue drops events for that connection only
	clientBuffer = 32
	// keeps idle streams open through proxies that cut silent connections
	defaultPingInterval = 25 * time.Second
)

type Event struct {
	Type      EventType `json:"type"`
	AlertID   uuid.UUID `json:"alertId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type client struct {
	userID uuid.UUID
	events chan Event
}

// Service fans events out to every subscribed dashboard tab.
type Service struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	done    chan struct{}
	log     *logger.Logger
	ping    time.Duration
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
		log:     log,
		ping:    defaultPingInterval,
	}
}

func (s *Service) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Service) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast never blocks on a slow reader.
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dropped := 0
	for c := range s.clients {
		select {
		case c.events <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		s.log.Warn("sse events dropped", "event", event.Type, "dropped", dropped)
	}
}

// Handler streams events until the request ends or the service closes.
// getUserID resolves the authenticated admin.
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		sub := &client{userID: userID, events: make(chan Event, clientBuffer)}
		if !s.addClient(sub) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		defer s.removeClient(sub)

		h := c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		log := s.log.With("user_id", userID)
		if err := write(c, "connected", gin.H{"userId": userID}); err != nil {
			log.Error("sse write failed", "event", "connected", "error", err)
		}
		log.Debug("sse subscribed")

		ticker := time.NewTicker(s.ping)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				log.Debug("sse unsubscribed")
				return
			case <-s.done:
				return
			case <-ticker.C:
				if err := ping(c); err != nil {
					log.Debug("sse ping failed", "error", err)
					return
				}
			case event := <-sub.events:
				if err := write(c, string(event.Type), event); err != nil {
					log.Error("sse write failed", "event", event.Type, "error", err)
				}
			}
		}
	}
}

func write(c *gin.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	c.SSEvent(name, string(data))
	c.Writer.Flush()
	return nil
}

// ping sends an SSE comment line, which clients ignore.
func ping(c *gin.Context) error {
	if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// Close ends every stream and rejects new subscribers. Safe to call twice.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
