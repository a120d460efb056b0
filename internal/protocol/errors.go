package protocol

import "fmt"

// HandshakeError reports a first frame that could not register a session.
// It is fatal to the connection that sent it and to nothing else.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "handshake: " + e.Reason
}

// ParseError reports a malformed frame received after the handshake.
// The frame is dropped and the session stays active.
type ParseError struct {
	Kind   Kind
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s frame: %s", e.Kind, e.Reason)
}
