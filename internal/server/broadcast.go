package server

import (
	"errors"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// BroadcastExcept queues frame for every session except the one held
// under exceptID and returns how many sessions accepted it. A recipient
// that cannot take the frame is skipped without affecting the others.
func (h *Hub) BroadcastExcept(exceptID string, frame []byte) int {
	delivered := 0
	for _, e := range h.dir.Snapshot() {
		if e.ID == exceptID {
			continue
		}
		if h.deliver(e, frame) {
			delivered++
		}
	}
	return delivered
}

// Unicast queues frame for the session held under targetID. It reports
// false when the id is absent or the frame could not be queued.
func (h *Hub) Unicast(targetID string, frame []byte) bool {
	e, ok := h.dir.Lookup(targetID)
	if !ok {
		return false
	}
	return h.deliver(e, frame)
}

// rosterFrame lists peers as one USERS frame, or nil when there are none.
func rosterFrame(peers []Entry) []byte {
	list := make([]protocol.Peer, 0, len(peers))
	for _, e := range peers {
		list = append(list, protocol.Peer{ID: e.ID, Nickname: e.Nickname})
	}
	return protocol.Roster(list)
}

// failedDelivery is an enqueue failure held back until the directory lock
// is released.
type failedDelivery struct {
	entry Entry
	err   error
}

// fanOut queues frame for every entry without blocking or logging, so it
// may run under the directory lock.
func fanOut(entries []Entry, frame []byte) []failedDelivery {
	var failed []failedDelivery
	for _, e := range entries {
		if err := e.Session.enqueue(frame); err != nil {
			failed = append(failed, failedDelivery{entry: e, err: err})
		}
	}
	return failed
}

func (h *Hub) reportFailures(failed []failedDelivery) {
	for _, f := range failed {
		h.reportDelivery(f.entry, f.err)
	}
}

func (h *Hub) deliver(e Entry, frame []byte) bool {
	err := e.Session.enqueue(frame)
	h.reportDelivery(e, err)
	return err == nil
}

func (h *Hub) reportDelivery(e Entry, err error) {
	switch {
	case err == nil:
	case errors.Is(err, errQueueFull):
		h.metrics.frameDropped("queue_full")
		e.Session.log.WithField("id", e.ID).Warn("Send queue full; dropping frame")
	default:
		e.Session.log.WithField("id", e.ID).Debug("Session closed; dropping frame")
	}
}
