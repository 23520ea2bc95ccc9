// Package session keeps server-hosted pipeline views, one per browser board.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/platform/apperr"
	"dealership_portal/platform/config"
	"dealership_portal/platform/logger"

	"github.com/google/uuid"
)

// ViewFactory builds an unmounted view.
type ViewFactory func() *pipeline.View

// Session is one isolated pipeline view owned by a user.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	View      *pipeline.View

	lastSeen atomic.Int64
	streams  atomic.Int32
}

// Touch marks the session as in use.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// StreamOpened and StreamClosed bracket a live event stream. Sessions with an
// open stream are never reaped.
func (s *Session) StreamOpened() { s.streams.Add(1) }

func (s *Session) StreamClosed() { s.streams.Add(-1) }

// Registry owns every live session.
type Registry struct {
	factory ViewFactory
	ttl     time.Duration
	limit   int
	log     *logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry.
func NewRegistry(factory ViewFactory, cfg config.SessionConfig, log *logger.Logger) *Registry {
	ttl := cfg.GetSessionIdleTTL()
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		limit:    cfg.GetSessionLimit(),
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create mounts a new view for owner.
func (r *Registry) Create(ctx context.Context, owner string, filter domain.FilterContext) (*Session, error) {
	r.mu.Lock()
	full := r.limit > 0 && len(r.sessions) >= r.limit
	r.mu.Unlock()
	if full {
		return nil, apperr.TooManyRequests("too many open pipeline sessions")
	}

	view := r.factory()
	if err := view.Mount(ctx, filter); err != nil {
		view.Dispose()
		return nil, err
	}

	s := &Session{ID: uuid.NewString(), Owner: owner, CreatedAt: r.now(), View: view}
	s.Touch(s.CreatedAt)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info("pipeline session opened", "session_id", s.ID, "owner", owner)
	return s, nil
}

// Get returns a session owned by owner and marks it used.
func (r *Registry) Get(id, owner string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("pipeline session not found")
	}
	if s.Owner != owner {
		return nil, apperr.Forbidden("pipeline session belongs to another user")
	}
	s.Touch(r.now())
	return s, nil
}

// Close disposes a session.
func (r *Registry) Close(id, owner string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.Owner != owner {
		r.mu.Unlock()
		return apperr.Forbidden("pipeline session belongs to another user")
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return apperr.NotFound("pipeline session not found")
	}
	s.View.Dispose()
	r.log.Info("pipeline session closed", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap disposes sessions idle for longer than the TTL and returns how many.
func (r *Registry) Reap() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.streams.Load() > 0 || s.LastSeen().After(cutoff) {
			continue
		}
		idle = append(idle, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.View.Dispose()
		r.log.Info("pipeline session expired", "session_id", s.ID, "idle_since", s.LastSeen())
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is cancelled, then closes the rest.
func (r *Registry) Run(ctx context.Context) {
	interval := max(r.ttl/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}

// CloseAll disposes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.View.Dispose()
	}
}
