package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

func user(id string) protocol.PublicUser {
	return protocol.PublicUser{ID: id, Name: id, ConnectedAt: time.Unix(1700000000, 0).UTC()}
}

func TestStore_BlockIsIdempotent(t *testing.T) {
	r := require.New(t)
	s := NewStore()

	list := s.Block("A", user("B"))
	r.Equal([]protocol.PublicUser{user("B")}, list)

	list = s.Block("A", user("B"))
	r.Len(list, 1)
	r.Equal([]protocol.PublicUser{user("B")}, s.List("A"))
	r.True(s.IsBlocked("A", "B"))
	r.False(s.IsBlocked("B", "A"))
}

func TestStore_BlockKeepsOriginalSnapshot(t *testing.T) {
	r := require.New(t)
	s := NewStore()

	s.Block("A", user("B"))
	renamed := user("B")
	renamed.Name = "Bobby"
	s.Block("A", renamed)

	r.Equal("B", s.List("A")[0].Name)
}

func TestStore_Unblock(t *testing.T) {
	r := require.New(t)
	s := NewStore()

	s.Block("A", user("B"))
	s.Block("A", user("C"))
	s.Block("A", user("D"))

	list := s.Unblock("A", "C")
	r.Equal([]string{"B", "D"}, ids(list))
	r.False(s.IsBlocked("A", "C"))

	list = s.Unblock("A", "C")
	r.Equal([]string{"B", "D"}, ids(list))

	s.Unblock("A", "B")
	s.Unblock("A", "D")
	r.Empty(s.List("A"))
	r.NotNil(s.List("A"))
	r.Zero(s.Owners())
}

func TestStore_ListIsACopy(t *testing.T) {
	r := require.New(t)
	s := NewStore()
	s.Block("A", user("B"))

	list := s.List("A")
	list[0].ID = "mutated"
	r.True(s.IsBlocked("A", "B"))
}

func ids(list []protocol.PublicUser) []string {
	out := make([]string, 0, len(list))
	for _, u := range list {
		out = append(out, u.ID)
	}
	return out
}
