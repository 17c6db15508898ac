package hub

import (
	"github.com/hanasu-chat/hanasu-signal/internal/directory"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// announceJoinLocked runs on every registration, including reconnects, so
// USER_CONNECTED must be treated as an upsert by clients.
func (h *Hub) announceJoinLocked(e directory.Entry) {
	h.deliverLocked(e.Session, protocol.KindConnSuccess, h.registry.SnapshotExcept(e.LogicalID))
	h.broadcastLocked(e.Session, protocol.KindUserConnected, e.Public())
}

func (h *Hub) announceLeaveLocked(e directory.Entry) {
	h.broadcastLocked(e.Session, protocol.KindUserDisconnected, e.Public())
}

// broadcastLocked sends to every current directory session except skip.
func (h *Hub) broadcastLocked(skip string, kind protocol.Kind, payload any) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		h.log.Error("hub_encode_failed", "kind", kind.Name(), "err", err)
		return
	}
	for _, s := range h.registry.Sessions() {
		if s == skip {
			continue
		}
		h.sendLocked(s, kind, frame)
	}
}
