package protocol

import (
	"strings"
)

// Client → server prefixes. Matching is literal and case-sensitive.
const (
	PrefixPing      = "PING"
	PrefixBroadcast = "MSG:"
	PrefixDirect    = "PRIV:"
	PrefixRename    = "NICK:"

	markerID   = "ID:"
	markerNick = "NICK:"

	directSeparator = '|'
)

// Kind tags a classified frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindBroadcast
	KindDirect
	KindRename
	KindHandshake
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindBroadcast:
		return "broadcast"
	case KindDirect:
		return "direct"
	case KindRename:
		return "rename"
	case KindHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

// Frame is one classified client frame. Only the fields relevant to Kind
// are populated.
type Frame struct {
	Kind     Kind
	ID       string // Handshake
	Nickname string // Handshake, Rename
	Target   string // Direct
	Text     string // Broadcast, Direct
}

// Parse classifies a post-handshake frame. Prefixes are checked in
// priority order PING, MSG:, PRIV:, NICK: and the first match wins.
// Anything else is returned as KindUnknown with a nil error so callers
// can ignore it. A trailing line terminator is not part of the payload.
func Parse(raw []byte) (Frame, error) {
	s := strings.TrimRight(string(raw), "\r\n")

	switch {
	case strings.HasPrefix(s, PrefixPing):
		return Frame{Kind: KindPing}, nil

	case strings.HasPrefix(s, PrefixBroadcast):
		return Frame{Kind: KindBroadcast, Text: s[len(PrefixBroadcast):]}, nil

	case strings.HasPrefix(s, PrefixDirect):
		rest := s[len(PrefixDirect):]
		i := strings.IndexByte(rest, directSeparator)
		if i < 0 {
			return Frame{}, &ParseError{Kind: KindDirect, Reason: "missing '|' separator"}
		}
		if i == 0 {
			return Frame{}, &ParseError{Kind: KindDirect, Reason: "empty target id"}
		}
		return Frame{Kind: KindDirect, Target: rest[:i], Text: rest[i+1:]}, nil

	case strings.HasPrefix(s, PrefixRename):
		name := s[len(PrefixRename):]
		if name == "" {
			return Frame{}, &ParseError{Kind: KindRename, Reason: "empty nickname"}
		}
		return Frame{Kind: KindRename, Nickname: name}, nil
	}

	return Frame{Kind: KindUnknown}, nil
}

// ParseHandshake extracts the identity carried by a connection's first
// frame. Each value runs from its marker to the next newline or the end
// of the frame. Markers are looked up at line starts first and anywhere
// in the frame otherwise.
func ParseHandshake(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, &HandshakeError{Reason: "empty frame"}
	}
	s := string(raw)

	id, ok := markerValue(s, markerID)
	if !ok {
		return Frame{}, &HandshakeError{Reason: "missing " + markerID + " marker"}
	}
	if id == "" {
		return Frame{}, &HandshakeError{Reason: "empty id"}
	}

	nick, ok := markerValue(s, markerNick)
	if !ok {
		return Frame{}, &HandshakeError{Reason: "missing " + markerNick + " marker"}
	}

	return Frame{Kind: KindHandshake, ID: id, Nickname: nick}, nil
}

func markerValue(s, marker string) (string, bool) {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, marker) {
			return strings.TrimRight(line[len(marker):], "\r"), true
		}
	}

	i := strings.Index(s, marker)
	if i < 0 {
		return "", false
	}
	v := s[i+len(marker):]
	if j := strings.IndexByte(v, '\n'); j >= 0 {
		v = v[:j]
	}
	return strings.TrimRight(v, "\r"), true
}
