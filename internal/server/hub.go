package server

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

// Hub owns the session directory and supervises one worker per attached
// connection plus the idle reaper. Connections from any transport are
// handed over with Attach.
type Hub struct {
	cfg      Config
	dir      *Directory
	log      logrus.FieldLogger
	metrics  *Metrics
	presence PresenceRecorder
	now      func() time.Time

	mu       sync.Mutex
	closing  bool
	sessions map[*Session]struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(h *Hub) { h.log = log }
}

// WithClock replaces time.Now for liveness and idle decisions.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithMetrics sets the collectors. Passing nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithPresence registers a recorder for joins, renames and departures.
func WithPresence(p PresenceRecorder) Option {
	return func(h *Hub) { h.presence = p }
}

// NewHub creates a hub ready to accept connections. Call Run to start the
// idle reaper.
func NewHub(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		cfg:      sanitizeConfig(cfg),
		log:      logrus.StandardLogger(),
		metrics:  NewMetrics(),
		now:      time.Now,
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.dir = NewDirectory(h.now)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// Directory exposes the session directory.
func (h *Hub) Directory() *Directory { return h.dir }

// Metrics returns the hub's collectors, which may be nil.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config { return h.cfg }

// Attach takes ownership of conn and serves it on a new goroutine. After
// Shutdown has begun the connection is closed and ErrHubClosed returned.
func (h *Hub) Attach(conn transport.Conn) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}

	s := newSession(conn, h.cfg, h.now, h.log)
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.metrics.connectionOpened()

	go func() {
		defer h.wg.Done()
		defer h.untrack(s)
		h.serve(s)
	}()
	return nil
}

func (h *Hub) untrack(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Shutdown stops admitting connections, closes every attached connection
// and waits for all session workers to return, up to timeout. A
// non-positive timeout selects the configured shutdown timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = h.cfg.ShutdownTimeout
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.log.WithField("connections", len(sessions)).Info("Initiating hub shutdown")
	h.cancel()

	for _, s := range sessions {
		s.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some session workers may still be running")
		return context.DeadlineExceeded
	}
}
