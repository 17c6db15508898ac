// Package moderation stores per-user blocklists.
//
// Lists are keyed by the owner's logical id and outlive any single connection,
// so a user keeps their blocklist across reconnects for the life of the
// process. Entries are snapshots taken at block time; a blocked user who later
// changes their display name keeps the old name here.
package moderation

import (
	"slices"

	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// Store is not safe for concurrent use; the hub serializes access.
type Store struct {
	lists map[string][]protocol.PublicUser
}

func NewStore() *Store {
	return &Store{lists: make(map[string][]protocol.PublicUser)}
}

// Block appends target to owner's list unless an entry with the same id is
// already present. It returns the resulting list.
func (s *Store) Block(owner string, target protocol.PublicUser) []protocol.PublicUser {
	if !s.IsBlocked(owner, target.ID) {
		s.lists[owner] = append(s.lists[owner], target)
	}
	return s.List(owner)
}

// Unblock removes targetID from owner's list if present and returns the
// resulting list.
func (s *Store) Unblock(owner, targetID string) []protocol.PublicUser {
	list := slices.DeleteFunc(s.lists[owner], func(u protocol.PublicUser) bool { return u.ID == targetID })
	if len(list) == 0 {
		delete(s.lists, owner)
	} else {
		s.lists[owner] = list
	}
	return s.List(owner)
}

// List returns a copy of owner's list in insertion order. It is never nil.
func (s *Store) List(owner string) []protocol.PublicUser {
	out := make([]protocol.PublicUser, len(s.lists[owner]))
	copy(out, s.lists[owner])
	return out
}

func (s *Store) IsBlocked(owner, targetID string) bool {
	return slices.ContainsFunc(s.lists[owner], func(u protocol.PublicUser) bool { return u.ID == targetID })
}

// Owners reports how many users have a non-empty list.
func (s *Store) Owners() int { return len(s.lists) }
