package hub

import (
	"github.com/hanasu-chat/hanasu-signal/internal/metrics"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// blockLocked snapshots the live user targetID into the sender's blocklist.
// Unknown targets and self-blocks leave the list unchanged. The sender always
// gets the resulting list back.
func (h *Hub) blockLocked(session, targetID string) {
	owner, ok := h.registry.LookupBySession(session)
	if !ok {
		return
	}

	var list []protocol.PublicUser
	target, live := h.registry.LookupByLogicalID(targetID)
	if live && target.LogicalID != owner.LogicalID {
		list = h.blocks.Block(owner.LogicalID, target.Public())
		h.metrics.Inc(metrics.EventModerationBlock)
		h.metrics.SetBlocklistOwners(h.blocks.Owners())
		h.log.Info("moderation_block", "user_id", owner.LogicalID, "target_id", targetID)
	} else {
		list = h.blocks.List(owner.LogicalID)
		h.log.Debug("moderation_block_ignored", "user_id", owner.LogicalID, "target_id", targetID, "live", live)
	}
	h.deliverLocked(session, protocol.KindBlockedUsers, list)
}

func (h *Hub) unblockLocked(session, targetID string) {
	owner, ok := h.registry.LookupBySession(session)
	if !ok {
		return
	}
	list := h.blocks.Unblock(owner.LogicalID, targetID)
	h.metrics.Inc(metrics.EventModerationUnblock)
	h.metrics.SetBlocklistOwners(h.blocks.Owners())
	h.log.Info("moderation_unblock", "user_id", owner.LogicalID, "target_id", targetID)
	h.deliverLocked(session, protocol.KindBlockedUsers, list)
}

func (h *Hub) listBlockedLocked(session string) {
	owner, ok := h.registry.LookupBySession(session)
	if !ok {
		return
	}
	h.metrics.Inc(metrics.EventModerationList)
	h.deliverLocked(session, protocol.KindBlockedUsers, h.blocks.List(owner.LogicalID))
}
