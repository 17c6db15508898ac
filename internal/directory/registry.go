// Package directory holds the in-memory set of online users and the transport
// session each one is currently reachable on.
package directory

import (
	"time"

	"github.com/samber/lo"

	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// Entry is a single online user. Entries are owned by the Registry; callers
// receive copies.
type Entry struct {
	LogicalID   string
	Session     string
	DisplayName string
	ConnectedAt time.Time
}

// Public returns the projection of e that is safe to send to clients.
func (e Entry) Public() protocol.PublicUser {
	return protocol.PublicUser{
		ID:          e.LogicalID,
		Name:        e.DisplayName,
		ConnectedAt: e.ConnectedAt,
	}
}

// Registry maps logical ids to their current transport session.
//
// Registry is not safe for concurrent use; the hub serializes access.
type Registry struct {
	entries   []*Entry
	byID      map[string]*Entry
	bySession map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Entry),
		bySession: make(map[string]*Entry),
	}
}

// Register inserts an entry for id, or rebinds the existing one to session in
// place. replaced reports whether an entry already existed.
func (r *Registry) Register(session, id, name string, at time.Time) (Entry, bool) {
	if e, ok := r.byID[id]; ok {
		delete(r.bySession, e.Session)
		e.Session = session
		e.DisplayName = name
		e.ConnectedAt = at
		r.bySession[session] = e
		return *e, true
	}

	e := &Entry{LogicalID: id, Session: session, DisplayName: name, ConnectedAt: at}
	r.entries = append(r.entries, e)
	r.byID[id] = e
	r.bySession[session] = e
	return *e, false
}

func (r *Registry) LookupBySession(session string) (Entry, bool) {
	e, ok := r.bySession[session]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Registry) LookupByLogicalID(id string) (Entry, bool) {
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove deletes the entry currently bound to session. A session that has
// been superseded by a reconnect no longer maps to any entry, so removing it
// is a no-op.
func (r *Registry) Remove(session string) (Entry, bool) {
	e, ok := r.bySession[session]
	if !ok {
		return Entry{}, false
	}
	delete(r.bySession, session)
	delete(r.byID, e.LogicalID)
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	return *e, true
}

// SnapshotExcept returns every online user other than id, in join order.
func (r *Registry) SnapshotExcept(id string) []protocol.PublicUser {
	others := lo.Filter(r.entries, func(e *Entry, _ int) bool { return e.LogicalID != id })
	return lo.Map(others, func(e *Entry, _ int) protocol.PublicUser { return e.Public() })
}

// Sessions returns the current session of every entry, in join order.
func (r *Registry) Sessions() []string {
	return lo.Map(r.entries, func(e *Entry, _ int) string { return e.Session })
}

func (r *Registry) Len() int { return len(r.entries) }
