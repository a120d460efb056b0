// Package store keeps a last-seen record of every client id the relay has
// admitted. It stores presence metadata only, never message content.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ErrNotFound is returned by Get for an id that was never recorded.
var ErrNotFound = errors.New("presence record not found")

// Presence is one client id's last known state.
type Presence struct {
	ID          string
	Nickname    string
	RemoteAddr  string
	Status      string
	FirstSeen   time.Time
	LastSeen    time.Time
	LeaveReason string
}

// SQLiteStore records presence in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open presence db: %w", err)
	}
	// Writers serialize on the file lock anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init presence db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS presence (
		id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL DEFAULT '',
		remote_addr TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		leave_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_presence_last_seen ON presence(last_seen DESC);
	CREATE INDEX IF NOT EXISTS idx_presence_status ON presence(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveJoin marks id online. first_seen is only written on the first join.
func (s *SQLiteStore) SaveJoin(ctx context.Context, id, nickname, remoteAddr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO presence (id, nickname, remote_addr, status, first_seen, last_seen, leave_reason)
	VALUES (?, ?, ?, ?, ?, ?, '')
	ON CONFLICT(id) DO UPDATE SET
		nickname = excluded.nickname,
		remote_addr = excluded.remote_addr,
		status = excluded.status,
		last_seen = excluded.last_seen,
		leave_reason = ''
	`
	at = at.UTC()
	_, err := s.db.ExecContext(ctx, query, id, nickname, remoteAddr, StatusOnline, at, at)
	if err != nil {
		return fmt.Errorf("save join %s: %w", id, err)
	}
	return nil
}

// SaveRename records a nickname change.
func (s *SQLiteStore) SaveRename(ctx context.Context, id, nickname string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE presence SET nickname = ?, last_seen = ? WHERE id = ?`,
		nickname, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("save rename %s: %w", id, err)
	}
	return nil
}

// SaveLeave marks id offline with the departure reason.
func (s *SQLiteStore) SaveLeave(ctx context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE presence SET status = ?, last_seen = ?, leave_reason = ? WHERE id = ?`,
		StatusOffline, at.UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("save leave %s: %w", id, err)
	}
	return nil
}

// MarkAllOffline flags every online record as offline. It is run at
// start-up, since no session survives a restart.
func (s *SQLiteStore) MarkAllOffline(ctx context.Context, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE presence SET status = ?, last_seen = ?, leave_reason = ? WHERE status = ?`,
		StatusOffline, at.UTC(), reason, StatusOnline)
	if err != nil {
		return 0, fmt.Errorf("mark offline: %w", err)
	}
	return res.RowsAffected()
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p Presence
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, remote_addr, status, first_seen, last_seen, leave_reason
		 FROM presence WHERE id = ?`, id).
		Scan(&p.ID, &p.Nickname, &p.RemoteAddr, &p.Status, &p.FirstSeen, &p.LastSeen, &p.LeaveReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get presence %s: %w", id, err)
	}
	return &p, nil
}

// List returns all records, most recently seen first.
func (s *SQLiteStore) List(ctx context.Context) ([]Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nickname, remote_addr, status, first_seen, last_seen, leave_reason
		 FROM presence ORDER BY last_seen DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	defer rows.Close()

	var out []Presence
	for rows.Next() {
		var p Presence
		if err := rows.Scan(&p.ID, &p.Nickname, &p.RemoteAddr, &p.Status, &p.FirstSeen, &p.LastSeen, &p.LeaveReason); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
