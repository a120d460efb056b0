package server

import (
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// route classifies one post-handshake frame and dispatches it. Every
// well-formed frame refreshes the sender's liveness first, including PING
// and unrecognized prefixes.
func (h *Hub) route(s *Session, raw []byte, log logrus.FieldLogger) {
	frame, err := protocol.Parse(raw)
	if err != nil {
		h.metrics.frameDropped("malformed")
		log.WithError(err).Debug("Dropping malformed frame")
		return
	}
	h.metrics.frameReceived(frame.Kind.String())

	sender, ok := h.dir.TouchSession(s)
	if !ok {
		// Displaced by a newer session holding the same id.
		h.metrics.frameDropped("displaced")
		return
	}

	if frame.Kind == protocol.KindPing || frame.Kind == protocol.KindUnknown {
		return
	}

	if !s.limiter.allow() {
		h.metrics.frameDropped("rate_limited")
		log.WithFields(logrus.Fields{
			"burst":    h.cfg.RateLimit.Burst,
			"interval": h.cfg.RateLimit.RefillInterval,
		}).Debug("Rate limit exceeded; discarding frame")
		return
	}

	switch frame.Kind {
	case protocol.KindBroadcast:
		n := h.BroadcastExcept(sender.ID, protocol.Message(sender.Nickname, frame.Text))
		log.WithField("recipients", n).Debug("Broadcast message")

	case protocol.KindDirect:
		if !h.Unicast(frame.Target, protocol.Private(sender.ID, frame.Text)) {
			log.WithField("target", frame.Target).Debug("Direct message not delivered")
		}

	case protocol.KindRename:
		if !h.dir.RenameSession(s, frame.Nickname) {
			return
		}
		h.BroadcastExcept(sender.ID, protocol.NickChange(sender.ID, frame.Nickname))
		log.WithFields(logrus.Fields{"from": sender.Nickname, "to": frame.Nickname}).Info("Nickname changed")
		h.recordRename(sender.ID, frame.Nickname, log)
	}
}
