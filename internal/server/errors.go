package server

import "errors"

var (
	// ErrDuplicateID is returned when a handshake names an id that already
	// has a live session and the duplicate policy is "reject".
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrHubClosed is returned by Attach once shutdown has begun.
	ErrHubClosed = errors.New("hub is shut down")
)
