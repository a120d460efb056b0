package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func pipe(t *testing.T, opts TCPOptions) (*TCPConn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewTCPConn(server, opts), client
}

func writeAsync(t *testing.T, w io.Writer, s string) {
	t.Helper()
	go func() {
		_, _ = w.Write([]byte(s))
	}()
}

func TestParseFraming(t *testing.T) {
	tests := []struct {
		in      string
		want    Framing
		wantErr bool
	}{
		{in: "read", want: FramingRead},
		{in: "LINE", want: FramingLine},
		{in: " line ", want: FramingLine},
		{in: "", want: FramingRead},
		{in: "datagram", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFraming(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFraming(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFraming(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTCPReadFraming(t *testing.T) {
	conn, client := pipe(t, TCPOptions{Framing: FramingRead})

	writeAsync(t, client, "ID:alice\nNICK:Al\n")
	hs, err := conn.ReadHandshake()
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if string(hs) != "ID:alice\nNICK:Al\n" {
		t.Errorf("handshake = %q", hs)
	}

	writeAsync(t, client, "MSG:hi")
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(frame) != "MSG:hi" {
		t.Errorf("frame = %q, want %q", frame, "MSG:hi")
	}
}

func TestTCPReadFramingTruncatesToMax(t *testing.T) {
	conn, client := pipe(t, TCPOptions{Framing: FramingRead, MaxFrameSize: 4})

	writeAsync(t, client, "MSG:hello")
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(frame) != "MSG:" {
		t.Errorf("frame = %q, want first four bytes", frame)
	}
}

func TestTCPLineFraming(t *testing.T) {
	conn, client := pipe(t, TCPOptions{Framing: FramingLine})

	writeAsync(t, client, "ID:alice\r\nNICK:Al\nMSG:one\nMSG:two\n")

	hs, err := conn.ReadHandshake()
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if string(hs) != "ID:alice\nNICK:Al\n" {
		t.Errorf("handshake = %q", hs)
	}

	for _, want := range []string{"MSG:one", "MSG:two"} {
		frame, err := conn.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(frame) != want {
			t.Errorf("frame = %q, want %q", frame, want)
		}
	}
}

func TestTCPLineFramingTooLarge(t *testing.T) {
	conn, client := pipe(t, TCPOptions{Framing: FramingLine, MaxFrameSize: 8})

	writeAsync(t, client, strings.Repeat("x", 64)+"\n")

	_, err := conn.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame error = %v, want ErrFrameTooLarge", err)
	}
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr.Op != "read" {
		t.Errorf("error = %#v, want read ConnectionError", err)
	}
}

func TestTCPWriteFrame(t *testing.T) {
	tests := []struct {
		name    string
		framing Framing
		frame   string
		want    string
	}{
		{name: "read framing writes verbatim", framing: FramingRead, frame: "USERLEFT:a", want: "USERLEFT:a"},
		{name: "line framing appends newline", framing: FramingLine, frame: "USERLEFT:a", want: "USERLEFT:a\n"},
		{name: "line framing keeps existing newline", framing: FramingLine, frame: "USERS:a:A\n", want: "USERS:a:A\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, client := pipe(t, TCPOptions{Framing: tt.framing, WriteTimeout: time.Second})

			errc := make(chan error, 1)
			go func() { errc <- conn.WriteFrame([]byte(tt.frame)) }()

			buf := make([]byte, len(tt.want))
			if _, err := io.ReadFull(client, buf); err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(buf) != tt.want {
				t.Errorf("wrote %q, want %q", buf, tt.want)
			}
			if err := <-errc; err != nil {
				t.Errorf("WriteFrame: %v", err)
			}
		})
	}
}

func TestTCPPeerHangupIsClosed(t *testing.T) {
	conn, client := pipe(t, TCPOptions{})
	_ = client.Close()

	_, err := conn.ReadFrame()
	if err == nil {
		t.Fatal("expected error after hangup")
	}
	if !IsClosed(err) {
		t.Errorf("IsClosed(%v) = false, want true", err)
	}
}

func TestTCPReadDeadline(t *testing.T) {
	conn, _ := pipe(t, TCPOptions{})

	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, err := conn.ReadFrame()
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false, want true", err)
	}
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: wrap("read", "x", io.EOF), want: true},
		{name: "net closed", err: net.ErrClosed, want: true},
		{name: "ws normal close", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, want: true},
		{name: "ws policy violation", err: &websocket.CloseError{Code: websocket.ClosePolicyViolation}, want: false},
		{name: "reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClosed(tt.err); got != tt.want {
				t.Errorf("IsClosed(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWebSocketConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws, 512, time.Second, r.RemoteAddr)
		defer conn.Close()

		hs, err := conn.ReadHandshake()
		if err != nil {
			return
		}
		received <- string(hs)

		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		received <- string(frame)

		_ = conn.WriteFrame([]byte("MSG:Al:" + strings.TrimPrefix(string(frame), "MSG:")))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte("ID:alice\nNICK:Al\n")); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte("MSG:hi")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	if got := <-received; got != "ID:alice\nNICK:Al\n" {
		t.Errorf("handshake = %q", got)
	}
	if got := <-received; got != "MSG:hi" {
		t.Errorf("frame = %q", got)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "MSG:Al:hi" {
		t.Errorf("server wrote %q", data)
	}

	// The server closes after replying.
	_, _, err = client.ReadMessage()
	if !IsClosed(err) {
		t.Errorf("expected close after reply, got %v", err)
	}
}
