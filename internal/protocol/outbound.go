package protocol

import "strings"

// Server → client prefixes.
const (
	PrefixRoster     = "USERS:"
	PrefixUserJoin   = "USERJOIN:"
	PrefixUserLeft   = "USERLEFT:"
	PrefixNickChange = "NICKCHANGE:"
	PrefixPrivate    = "[Private]"
)

// Peer is one line of the initial roster.
type Peer struct {
	ID       string
	Nickname string
}

// Roster concatenates one "USERS:<id>:<nick>\n" line per peer into a
// single frame. It returns nil for an empty peer list.
func Roster(peers []Peer) []byte {
	if len(peers) == 0 {
		return nil
	}
	var b strings.Builder
	for _, p := range peers {
		b.WriteString(PrefixRoster)
		b.WriteString(p.ID)
		b.WriteByte(':')
		b.WriteString(p.Nickname)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// UserJoin announces a newly admitted session.
func UserJoin(id, nickname string) []byte {
	return []byte(PrefixUserJoin + id + ":" + nickname)
}

// UserLeft announces a departed session, whatever the cause.
func UserLeft(id string) []byte {
	return []byte(PrefixUserLeft + id)
}

// NickChange announces a rename.
func NickChange(id, nickname string) []byte {
	return []byte(PrefixNickChange + id + ":" + nickname)
}

// Message is a public message as seen by recipients.
func Message(senderNickname, text string) []byte {
	return []byte(PrefixBroadcast + senderNickname + ":" + text)
}

// Private is a direct message as seen by its recipient.
func Private(senderID, text string) []byte {
	return []byte(PrefixPrivate + senderID + ":" + text)
}
