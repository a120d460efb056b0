package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Framing selects how a TCP byte stream is cut into frames.
type Framing string

const (
	// FramingRead treats whatever one read returns as one frame.
	FramingRead Framing = "read"
	// FramingLine treats each newline-terminated line as one frame.
	FramingLine Framing = "line"
)

// DefaultMaxFrameSize matches the receive buffer of the reference server.
const DefaultMaxFrameSize = 512

// handshakeLines is the number of lines an ID/NICK handshake spans.
const handshakeLines = 2

// ParseFraming validates a framing name.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case FramingRead, FramingLine:
		return f, nil
	case "":
		return FramingRead, nil
	default:
		return "", fmt.Errorf("unknown framing %q (want %q or %q)", s, FramingRead, FramingLine)
	}
}

// TCPOptions configures a TCPConn.
type TCPOptions struct {
	Framing      Framing
	MaxFrameSize int
	WriteTimeout time.Duration
}

// TCPConn adapts a stream socket to Conn.
type TCPConn struct {
	conn         net.Conn
	addr         string
	framing      Framing
	writeTimeout time.Duration

	buf    []byte        // FramingRead
	reader *bufio.Reader // FramingLine
}

// NewTCPConn wraps conn.
func NewTCPConn(conn net.Conn, opts TCPOptions) *TCPConn {
	size := opts.MaxFrameSize
	if size <= 0 {
		size = DefaultMaxFrameSize
	}
	framing := opts.Framing
	if framing == "" {
		framing = FramingRead
	}

	c := &TCPConn{
		conn:         conn,
		framing:      framing,
		writeTimeout: opts.WriteTimeout,
	}
	if ra := conn.RemoteAddr(); ra != nil {
		c.addr = ra.String()
	}

	if framing == FramingLine {
		// Room for the terminator on a maximum-size line.
		c.reader = bufio.NewReaderSize(conn, size+2)
	} else {
		c.buf = make([]byte, size)
	}
	return c
}

// ReadHandshake reads the first frame. Under line framing the handshake
// spans two lines, which are rejoined with their newlines.
func (c *TCPConn) ReadHandshake() ([]byte, error) {
	if c.framing != FramingLine {
		return c.ReadFrame()
	}

	var b bytes.Buffer
	for i := 0; i < handshakeLines; i++ {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

// ReadFrame returns the next frame.
func (c *TCPConn) ReadFrame() ([]byte, error) {
	if c.framing == FramingLine {
		return c.readLine()
	}
	return c.readChunk()
}

func (c *TCPConn) readChunk() ([]byte, error) {
	for {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			// A pending error resurfaces on the next read.
			frame := make([]byte, n)
			copy(frame, c.buf[:n])
			return frame, nil
		}
		if err != nil {
			return nil, wrap("read", c.addr, err)
		}
	}
}

func (c *TCPConn) readLine() ([]byte, error) {
	line, err := c.reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, wrap("read", c.addr, ErrFrameTooLarge)
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return trimLine(line), nil
		}
		return nil, wrap("read", c.addr, err)
	}
	return trimLine(line), nil
}

func trimLine(line []byte) []byte {
	trimmed := bytes.TrimRight(line, "\r\n")
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return out
}

// WriteFrame writes frame, newline-terminating it under line framing.
func (c *TCPConn) WriteFrame(frame []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return wrap("write", c.addr, err)
		}
	}
	if c.framing == FramingLine && !bytes.HasSuffix(frame, []byte{'\n'}) {
		out := make([]byte, 0, len(frame)+1)
		out = append(out, frame...)
		frame = append(out, '\n')
	}
	_, err := c.conn.Write(frame)
	return wrap("write", c.addr, err)
}

// SetReadDeadline implements Conn.
func (c *TCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close implements Conn.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements Conn.
func (c *TCPConn) RemoteAddr() string {
	return c.addr
}
