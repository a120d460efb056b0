package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebSocketConn adapts a gorilla WebSocket to Conn. Each text or binary
// message is exactly one frame, so no framing decisions are needed.
type WebSocketConn struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps conn. maxFrameSize caps inbound messages; addr
// is the client address as seen by the HTTP server.
func NewWebSocketConn(conn *websocket.Conn, maxFrameSize int64, writeTimeout time.Duration, addr string) *WebSocketConn {
	if maxFrameSize > 0 {
		conn.SetReadLimit(maxFrameSize)
	}
	return &WebSocketConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
	}
}

// ReadHandshake implements Conn.
func (c *WebSocketConn) ReadHandshake() ([]byte, error) {
	return c.ReadFrame()
}

// ReadFrame implements Conn.
func (c *WebSocketConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, wrap("read", c.addr, err)
	}
	return data, nil
}

// WriteFrame sends frame as one text message.
func (c *WebSocketConn) WriteFrame(frame []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return wrap("write", c.addr, err)
		}
	}
	return wrap("write", c.addr, c.conn.WriteMessage(websocket.TextMessage, frame))
}

// SetReadDeadline implements Conn.
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a best-effort close message and closes the socket.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements Conn.
func (c *WebSocketConn) RemoteAddr() string {
	return c.addr
}
