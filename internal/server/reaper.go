package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Run sweeps the directory for idle sessions every ReapInterval until ctx
// is cancelled or the hub shuts down.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	h.log.WithFields(logrus.Fields{
		"interval":     h.cfg.ReapInterval,
		"idle_timeout": h.cfg.IdleTimeout,
	}).Info("Idle reaper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.ctx.Done():
			return nil
		case <-ticker.C:
			h.Reap()
		}
	}
}

// Reap evicts every session whose last activity is older than
// IdleTimeout and returns how many were evicted. Staleness is re-checked
// at removal so a session that spoke after the snapshot survives.
func (h *Hub) Reap() int {
	cutoff := h.now().Add(-h.cfg.IdleTimeout)
	idle := func(e Entry) bool { return e.LastActiveAt.Before(cutoff) }

	evicted := 0
	for _, e := range h.dir.Snapshot() {
		if !idle(e) {
			continue
		}
		if h.leaveIf(e.Session, LeaveIdle, idle) {
			evicted++
		}
	}

	if evicted > 0 {
		h.log.WithFields(logrus.Fields{
			"evicted":   evicted,
			"remaining": h.dir.Len(),
		}).Info("Reaped idle sessions")
	}
	return evicted
}
