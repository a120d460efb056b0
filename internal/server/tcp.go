package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

// ListenTCP opens the stream listener for the configured port.
func ListenTCP(cfg Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}
	return ln, nil
}

// ServeTCP accepts connections from ln and attaches each one to hub until
// ctx is cancelled or the hub shuts down. The listener is closed on return.
func ServeTCP(ctx context.Context, ln net.Listener, hub *Hub) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
		case <-hub.ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()

	hub.log.WithField("addr", ln.Addr().String()).Info("TCP listener started")

	opts := transport.TCPOptions{
		Framing:      hub.cfg.Framing,
		MaxFrameSize: int(hub.cfg.MaxMessageSize),
		WriteTimeout: hub.cfg.WriteTimeout,
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-hub.ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		hub.log.WithField("addr", conn.RemoteAddr().String()).Debug("Connection accepted")
		if err := hub.Attach(transport.NewTCPConn(conn, opts)); err != nil {
			return nil
		}
	}
}
