// Package transport provides the Connection capability the relay core is
// written against. Transports decide how bytes become frames; what a frame
// means is the protocol package's job.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one client's bidirectional frame stream.
//
// ReadFrame and ReadHandshake are called from a single reader goroutine.
// WriteFrame is called from a single writer goroutine. Close may be called
// from anywhere and more than once.
type Conn interface {
	// ReadHandshake returns the connection's first logical frame.
	ReadHandshake() ([]byte, error)

	// ReadFrame blocks for the next frame. It returns a *ConnectionError
	// wrapping io.EOF when the peer hangs up.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one frame.
	WriteFrame(frame []byte) error

	// SetReadDeadline bounds pending and future reads. A zero time clears it.
	SetReadDeadline(t time.Time) error

	// Close releases the underlying connection.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// ErrFrameTooLarge is returned when a line-framed read exceeds the
// configured maximum frame size.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ConnectionError is a read or write failure on a client connection.
type ConnectionError struct {
	Op   string // "read" or "write"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func wrap(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{Op: op, Addr: addr, Err: err}
}

// IsClosed reports whether err is an expected consequence of either side
// closing the connection, as opposed to a genuine transport failure.
func IsClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
