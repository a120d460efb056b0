package server

import (
	"sort"
	"sync"
	"time"
)

// Entry is a point-in-time copy of one directory record.
type Entry struct {
	ID           string
	Nickname     string
	RemoteAddr   string
	JoinedAt     time.Time
	LastActiveAt time.Time
	Session      *Session
}

// Directory is the registry of active sessions keyed by client id. Every
// method holds the lock for one logical operation and never performs I/O
// while holding it.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewDirectory returns an empty directory. A nil clock selects time.Now.
func NewDirectory(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		entries: make(map[string]*Entry),
		now:     now,
	}
}

// Insert adds e, overwriting any entry held under the same id. The
// overwritten entry is returned so the caller can report it; its session
// is not closed.
func (d *Directory) Insert(e Entry) (Entry, bool) {
	adm := d.Admit(e, true, nil)
	return adm.Prev, adm.Replaced
}

// Touch refreshes the liveness timestamp of id. Unknown ids are ignored.
func (d *Directory) Touch(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return false
	}
	e.LastActiveAt = d.now()
	return true
}

// TouchSession refreshes the entry owned by s and returns a copy of it.
// It reports false when s no longer owns its id.
func (d *Directory) TouchSession(s *Session) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[s.id]
	if !ok || e.Session != s {
		return Entry{}, false
	}
	e.LastActiveAt = d.now()
	return *e, true
}

// Rename changes the nickname of id. Unknown ids are ignored.
func (d *Directory) Rename(id, nickname string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return false
	}
	e.Nickname = nickname
	return true
}

// RenameSession changes the nickname of the entry owned by s.
func (d *Directory) RenameSession(s *Session, nickname string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[s.id]
	if !ok || e.Session != s {
		return false
	}
	e.Nickname = nickname
	return true
}

// Remove deletes and returns the entry held under id.
func (d *Directory) Remove(id string) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return Entry{}, false
	}
	delete(d.entries, id)
	return *e, true
}

// RemoveSession deletes the entry owned by s. Exactly one caller can
// succeed for a given session, which makes it the linearization point of
// departure.
func (d *Directory) RemoveSession(s *Session) (Entry, bool) {
	return d.Depart(s, nil, nil)
}

// RemoveSessionIf is RemoveSession guarded by a predicate evaluated under
// the lock. A nil predicate always matches.
func (d *Directory) RemoveSessionIf(s *Session, pred func(Entry) bool) (Entry, bool) {
	return d.Depart(s, pred, nil)
}

// Depart is RemoveSessionIf that also calls onRemove, still under the
// lock, with the removed entry and the entries that remain. onRemove must
// not block.
func (d *Directory) Depart(s *Session, pred func(Entry) bool, onRemove func(gone Entry, rest []Entry)) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[s.id]
	if !ok || e.Session != s {
		return Entry{}, false
	}
	if pred != nil && !pred(*e) {
		return Entry{}, false
	}
	delete(d.entries, s.id)

	if onRemove != nil {
		onRemove(*e, d.sortedLocked(""))
	}
	return *e, true
}

// Admission is the outcome of Admit.
type Admission struct {
	Inserted bool
	Replaced bool
	Prev     Entry   // overwritten entry when Replaced
	Peers    []Entry // entries under other ids at insertion time
}

// Admit inserts e and calls onInsert under the same lock with every entry
// held under another id, ordered like Snapshot. When replace is false and
// the id is already held nothing changes and onInsert is not called.
// onInsert must not block.
func (d *Directory) Admit(e Entry, replace bool, onInsert func(peers []Entry)) Admission {
	d.mu.Lock()
	defer d.mu.Unlock()

	var adm Admission
	if prev, ok := d.entries[e.ID]; ok {
		if !replace {
			return adm
		}
		adm.Replaced = true
		adm.Prev = *prev
	}
	d.entries[e.ID] = &e
	adm.Inserted = true
	adm.Peers = d.sortedLocked(e.ID)

	if onInsert != nil {
		onInsert(adm.Peers)
	}
	return adm
}

// Owns reports whether s still holds its id.
func (d *Directory) Owns(s *Session) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[s.id]
	return ok && e.Session == s
}

// Lookup returns a copy of the entry held under id.
func (d *Directory) Lookup(id string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns copies of all entries ordered by join time, then id.
// The result does not track later changes.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedLocked("")
}

// sortedLocked copies every entry except the one under skipID, ordered by
// join time, then id. The caller holds the lock.
func (d *Directory) sortedLocked(skipID string) []Entry {
	out := make([]Entry, 0, len(d.entries))
	for id, e := range d.entries {
		if skipID != "" && id == skipID {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
