package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

var (
	errQueueFull     = errors.New("send queue full")
	errSessionClosed = errors.New("session closed")
)

// Session is one connection's worker state, from accept until teardown.
// Identity and liveness live in the Directory; a Session only owns the
// connection, its outbound queue and its rate limiter.
type Session struct {
	id    string
	token uuid.UUID
	conn  transport.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter *rateLimiter
	log     logrus.FieldLogger
}

func newSession(conn transport.Conn, cfg Config, now func() time.Time, log logrus.FieldLogger) *Session {
	token := uuid.New()
	return &Session{
		token:   token,
		conn:    conn,
		send:    make(chan []byte, cfg.SendQueueSize),
		done:    make(chan struct{}),
		limiter: newRateLimiter(cfg.RateLimit, now),
		log: log.WithFields(logrus.Fields{
			"session": token.String(),
			"addr":    conn.RemoteAddr(),
		}),
	}
}

// ID returns the client-chosen id, empty until the handshake completes.
func (s *Session) ID() string { return s.id }

// Token returns the server-assigned identifier unique to this connection.
func (s *Session) Token() uuid.UUID { return s.token }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// enqueue hands frame to the writer without blocking.
func (s *Session) enqueue(frame []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errQueueFull
	}
}

// writePump drains the queue in order until the session closes. A write
// failure closes the connection, which in turn ends the reader.
func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.send:
			if err := s.conn.WriteFrame(frame); err != nil {
				if !transport.IsClosed(err) {
					s.log.WithError(err).Warn("Write failed; closing connection")
				}
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close releases the connection exactly once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil && !transport.IsClosed(err) {
			s.log.WithError(err).Debug("Error closing connection")
		}
	})
}
