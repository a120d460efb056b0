package server

import (
	"context"
	"time"
)

// LeaveReason records why a session left the directory.
type LeaveReason string

const (
	LeaveDisconnect LeaveReason = "disconnect" // peer hung up
	LeaveError      LeaveReason = "error"      // read failure other than a hangup
	LeaveIdle       LeaveReason = "idle"       // reaped
	LeaveEvicted    LeaveReason = "evicted"    // displaced by a newer session with the same id
	LeaveShutdown   LeaveReason = "shutdown"
)

// PresenceRecorder receives directory changes for out-of-band bookkeeping.
// Calls are made outside the directory lock, from session workers and the
// reaper, and may run concurrently.
type PresenceRecorder interface {
	SaveJoin(ctx context.Context, id, nickname, remoteAddr string, at time.Time) error
	SaveRename(ctx context.Context, id, nickname string, at time.Time) error
	SaveLeave(ctx context.Context, id, reason string, at time.Time) error
}

// UserInfo is the JSON form of a directory entry served on /users.
type UserInfo struct {
	ID           string    `json:"id"`
	Nickname     string    `json:"nickname"`
	RemoteAddr   string    `json:"remote_addr"`
	Session      string    `json:"session"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func userInfo(e Entry) UserInfo {
	info := UserInfo{
		ID:           e.ID,
		Nickname:     e.Nickname,
		RemoteAddr:   e.RemoteAddr,
		JoinedAt:     e.JoinedAt,
		LastActiveAt: e.LastActiveAt,
	}
	if e.Session != nil {
		info.Session = e.Session.Token().String()
	}
	return info
}
