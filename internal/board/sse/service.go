// Package sse streams pipeline snapshots to browsers with Server-Sent Events.
package sse

import (
	"sync"
	"time"

	"dealership_portal/internal/pipeline"
	"dealership_portal/platform/logger"

	"github.com/gin-gonic/gin"
)

// EventType names an SSE event.
type EventType string

const (
	EventConnected EventType = "connected"
	EventSnapshot  EventType = "snapshot"
	EventPing      EventType = "ping"
)

const defaultKeepAlive = 25 * time.Second

// Source is what a stream reads from.
type Source interface {
	Snapshot() pipeline.Snapshot
	Watch() (<-chan struct{}, func())
}

// Service tracks open streams per session.
type Service struct {
	mu        sync.RWMutex
	clients   map[string]int
	keepAlive time.Duration
	log       *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients:   make(map[string]int),
		keepAlive: defaultKeepAlive,
		log:       log,
	}
}

// Connected returns the number of open streams for a session.
func (s *Service) Connected(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[sessionID]
}

func (s *Service) addClient(sessionID string) {
	s.mu.Lock()
	s.clients[sessionID]++
	s.mu.Unlock()
}

func (s *Service) removeClient(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[sessionID]--
	if s.clients[sessionID] <= 0 {
		delete(s.clients, sessionID)
	}
}

// Stream writes the current snapshot, then a new one after every change,
// until the client goes away or the view is disposed. touch runs on every
// write.
func (s *Service) Stream(c *gin.Context, sessionID string, src Source, touch func()) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	changes, stop := src.Watch()
	defer stop()

	s.addClient(sessionID)
	defer s.removeClient(sessionID)
	s.log.Debug("sse client connected", "session_id", sessionID)

	c.SSEvent(string(EventConnected), gin.H{"sessionId": sessionID})
	c.SSEvent(string(EventSnapshot), src.Snapshot())
	c.Writer.Flush()

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			s.log.Debug("sse client disconnected", "session_id", sessionID)
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			c.SSEvent(string(EventSnapshot), src.Snapshot())
			c.Writer.Flush()
			touch()
		case <-ping.C:
			c.SSEvent(string(EventPing), gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
			touch()
		}
	}
}
