package server

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/transport"
)

const presenceTimeout = 2 * time.Second

// serve drives one connection through handshake, admission and its read
// loop. It returns once the session has left.
func (h *Hub) serve(s *Session) {
	frame, err := h.handshake(s)
	if err != nil {
		h.metrics.handshakeFailed()
		if transport.IsTimeout(err) {
			s.log.WithField("timeout", h.cfg.HandshakeTimeout).Info("Handshake timed out; closing connection")
		} else {
			s.log.WithError(err).Info("Handshake failed; closing connection")
		}
		s.close()
		return
	}

	s.id = frame.ID
	log := s.log.WithField("id", s.id)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.writePump()
	}()

	if err := h.admit(s, frame.Nickname, log); err != nil {
		log.WithError(err).Warn("Session rejected")
		s.close()
		return
	}

	h.readLoop(s, log)
}

func (h *Hub) handshake(s *Session) (protocol.Frame, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		return protocol.Frame{}, fmt.Errorf("set handshake deadline: %w", err)
	}

	raw, err := s.conn.ReadHandshake()
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("read handshake: %w", err)
	}

	frame, err := protocol.ParseHandshake(raw)
	if err != nil {
		return protocol.Frame{}, err
	}

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return protocol.Frame{}, fmt.Errorf("clear handshake deadline: %w", err)
	}
	return frame, nil
}

// admit inserts the session according to the duplicate policy. The
// newcomer's roster and its peers' join notice are queued in the same
// critical section as the insert.
func (h *Hub) admit(s *Session, nickname string, log logrus.FieldLogger) error {
	now := h.now()
	entry := Entry{
		ID:           s.id,
		Nickname:     nickname,
		RemoteAddr:   s.RemoteAddr(),
		JoinedAt:     now,
		LastActiveAt: now,
		Session:      s,
	}

	join := protocol.UserJoin(entry.ID, entry.Nickname)
	var failed []failedDelivery
	announce := func(peers []Entry) {
		// s.send is still empty here.
		if roster := rosterFrame(peers); roster != nil {
			_ = s.enqueue(roster)
		}
		failed = fanOut(peers, join)
	}

	var adm Admission
	switch h.cfg.DuplicatePolicy {
	case DuplicateReject:
		adm = h.dir.Admit(entry, false, announce)
		if !adm.Inserted {
			h.metrics.duplicateID()
			return ErrDuplicateID
		}

	case DuplicateEvict:
		for counted := false; ; {
			adm = h.dir.Admit(entry, false, announce)
			if adm.Inserted {
				break
			}
			if !counted {
				h.metrics.duplicateID()
				counted = true
			}
			if prev, ok := h.dir.Lookup(entry.ID); ok {
				log.WithField("evicted_session", prev.Session.Token().String()).
					Warn("Evicting earlier session holding the same id")
				h.leave(prev.Session, LeaveEvicted)
			}
		}

	default:
		adm = h.dir.Admit(entry, true, announce)
		if adm.Replaced {
			h.metrics.duplicateID()
			log.WithField("replaced_session", adm.Prev.Session.Token().String()).
				Warn("Duplicate id admitted; earlier connection left open and unreachable")
		}
	}
	if !adm.Replaced {
		h.metrics.sessionAdded()
	}
	h.reportFailures(failed)

	// A newcomer racing for the same id may already have displaced s.
	if !h.dir.Owns(s) {
		log.Info("Session displaced during admission")
		return nil
	}

	log.WithField("nickname", nickname).Info("Session admitted")
	h.recordJoin(entry, log)
	return nil
}

func (h *Hub) readLoop(s *Session, log logrus.FieldLogger) {
	for {
		raw, err := s.conn.ReadFrame()
		if err != nil {
			reason := h.readFailureReason(err)
			if reason == LeaveError {
				log.WithError(err).Warn("Read failed")
			} else {
				log.WithError(err).Debug("Connection closed")
			}
			h.leave(s, reason)
			return
		}
		h.route(s, raw, log)
	}
}

func (h *Hub) readFailureReason(err error) LeaveReason {
	switch {
	case h.isClosing():
		return LeaveShutdown
	case transport.IsClosed(err):
		return LeaveDisconnect
	default:
		return LeaveError
	}
}

// leave removes s from the directory, announces the departure and closes
// the connection. Only the first caller for a given session gets past the
// removal; every other caller just makes sure the connection is closed.
func (h *Hub) leave(s *Session, reason LeaveReason) bool {
	return h.leaveIf(s, reason, nil)
}

// leaveIf is leave guarded by pred, evaluated atomically with the removal.
// A failed predicate leaves the session untouched.
func (h *Hub) leaveIf(s *Session, reason LeaveReason, pred func(Entry) bool) bool {
	var failed []failedDelivery
	entry, ok := h.dir.Depart(s, pred, func(gone Entry, rest []Entry) {
		failed = fanOut(rest, protocol.UserLeft(gone.ID))
	})
	if !ok {
		if pred == nil {
			s.close()
		}
		return false
	}
	h.metrics.sessionRemoved()
	h.metrics.departed(reason)

	h.reportFailures(failed)
	s.close()

	log := s.log.WithFields(logrus.Fields{"id": entry.ID, "reason": reason})
	log.Info("Session left")
	h.recordLeave(entry.ID, reason, log)
	return true
}

func (h *Hub) recordJoin(e Entry, log logrus.FieldLogger) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.SaveJoin(ctx, e.ID, e.Nickname, e.RemoteAddr, e.JoinedAt); err != nil {
		log.WithError(err).Warn("Failed to record join")
	}
}

func (h *Hub) recordRename(id, nickname string, log logrus.FieldLogger) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.SaveRename(ctx, id, nickname, h.now()); err != nil {
		log.WithError(err).Warn("Failed to record rename")
	}
}

func (h *Hub) recordLeave(id string, reason LeaveReason, log logrus.FieldLogger) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.SaveLeave(ctx, id, string(reason), h.now()); err != nil {
		log.WithError(err).Warn("Failed to record departure")
	}
}
