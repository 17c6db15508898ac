package hub

import (
	"github.com/hanasu-chat/hanasu-signal/internal/metrics"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// relayLocked forwards one call-lifecycle message from the user on session to
// the user registered as to. Nothing is sent back to the sender, whether or
// not the message is delivered.
func (h *Hub) relayLocked(session string, in protocol.Kind, to string, out protocol.Kind, payload func(from protocol.PublicUser) any) {
	sender, ok := h.registry.LookupBySession(session)
	if !ok {
		h.dropLocked(metrics.EventRelayDroppedUnknownSender, session, in, to)
		return
	}
	target, ok := h.registry.LookupByLogicalID(to)
	if !ok {
		h.dropLocked(metrics.EventRelayDroppedUnknownTarget, session, in, to)
		return
	}
	if in == protocol.KindMakeCall && h.callBlockedLocked(sender.LogicalID, target.LogicalID) {
		h.dropLocked(metrics.EventRelayDroppedBlocked, session, in, to)
		return
	}

	h.deliverLocked(target.Session, out, payload(sender.Public()))
	h.metrics.Inc(metrics.EventRelayForwarded)
	h.log.Debug("relay_forwarded", "kind", in.Name(), "from", sender.LogicalID, "to", target.LogicalID)
}

// callBlockedLocked applies the configured block policy to a call from caller
// to callee. Only call setup is filtered; teardown always goes through.
func (h *Hub) callBlockedLocked(caller, callee string) bool {
	switch h.policy {
	case BlockPolicyTarget:
		return h.blocks.IsBlocked(callee, caller)
	case BlockPolicyMutual:
		return h.blocks.IsBlocked(callee, caller) || h.blocks.IsBlocked(caller, callee)
	default:
		return false
	}
}

func (h *Hub) dropLocked(event, session string, kind protocol.Kind, to string) {
	h.metrics.Inc(event)
	h.log.Debug("relay_dropped", "reason", event, "kind", kind.Name(), "session", session, "to", to)
}
