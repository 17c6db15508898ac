// Package hub owns the shared signaling state: the directory of online users,
// their blocklists, and the set of live connections. Every read that takes
// part in a delivery decision and every mutation happens under one mutex.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hanasu-chat/hanasu-signal/internal/directory"
	"github.com/hanasu-chat/hanasu-signal/internal/metrics"
	"github.com/hanasu-chat/hanasu-signal/internal/moderation"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

// Peer is a live transport connection. Send must not block; it reports
// whether the frame was accepted for delivery.
type Peer interface {
	Session() string
	Send(frame []byte) bool
}

// BlockPolicy controls whether MAKE_CALL is filtered through the blocklists.
type BlockPolicy int

// The zero value is BlockPolicyTarget.
const (
	// BlockPolicyTarget drops a call when the callee has blocked the caller.
	BlockPolicyTarget BlockPolicy = iota
	// BlockPolicyNone forwards every call.
	BlockPolicyNone
	// BlockPolicyMutual additionally drops a call when the caller has blocked
	// the callee.
	BlockPolicyMutual
)

func ParseBlockPolicy(s string) (BlockPolicy, error) {
	switch s {
	case "none":
		return BlockPolicyNone, nil
	case "target", "":
		return BlockPolicyTarget, nil
	case "mutual":
		return BlockPolicyMutual, nil
	default:
		return 0, fmt.Errorf("invalid call block policy %q (expected none, target or mutual)", s)
	}
}

func (p BlockPolicy) String() string {
	switch p {
	case BlockPolicyNone:
		return "none"
	case BlockPolicyTarget:
		return "target"
	case BlockPolicyMutual:
		return "mutual"
	default:
		return fmt.Sprintf("BlockPolicy(%d)", int(p))
	}
}

type Options struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	BlockPolicy BlockPolicy
	// Clock stamps connectedAt on registration. Defaults to time.Now.
	Clock func() time.Time
}

type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	policy  BlockPolicy
	now     func() time.Time

	mu       sync.Mutex
	registry *directory.Registry
	blocks   *moderation.Store
	peers    map[string]Peer
}

func New(opts Options) *Hub {
	h := &Hub{
		log:      opts.Logger,
		metrics:  opts.Metrics,
		policy:   opts.BlockPolicy,
		now:      opts.Clock,
		registry: directory.NewRegistry(),
		blocks:   moderation.NewStore(),
		peers:    make(map[string]Peer),
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register attaches p to the directory under id. A previous connection for
// the same id stays open but stops receiving events; its later disconnect is
// ignored.
func (h *Hub) Register(p Peer, id, name string) directory.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, hadPrev := h.registry.LookupByLogicalID(id)
	entry, replaced := h.registry.Register(p.Session(), id, name, h.now().UTC())
	if replaced && hadPrev {
		delete(h.peers, prev.Session)
	}
	h.peers[p.Session()] = p

	if replaced {
		h.metrics.Inc(metrics.EventPresenceReconnected)
		h.log.Info("presence_reconnected", "user_id", id, "session", entry.Session, "previous_session", prev.Session)
	} else {
		h.metrics.Inc(metrics.EventPresenceRegistered)
		h.log.Info("presence_registered", "user_id", id, "session", entry.Session)
	}
	h.metrics.SetOnline(h.registry.Len())

	h.announceJoinLocked(entry)
	return entry
}

// Unregister handles transport close of session. It reports the removed
// entry, if session was still the current one for its user.
func (h *Hub) Unregister(session string) (directory.Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.peers, session)
	entry, ok := h.registry.Remove(session)
	if !ok {
		h.metrics.Inc(metrics.EventPresenceStaleRemove)
		h.log.Debug("presence_stale_remove", "session", session)
		return directory.Entry{}, false
	}

	h.metrics.Inc(metrics.EventPresenceRemoved)
	h.metrics.SetOnline(h.registry.Len())
	h.log.Info("presence_removed", "user_id", entry.LogicalID, "session", session)

	h.announceLeaveLocked(entry)
	return entry, true
}

// Handle dispatches one inbound message received on session.
func (h *Hub) Handle(session string, msg protocol.ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch m := msg.(type) {
	case protocol.MakeCall:
		h.relayLocked(session, m.Kind(), m.To, protocol.KindCallMade, func(from protocol.PublicUser) any {
			return protocol.CallMade{Offer: m.Offer, User: from}
		})
	case protocol.AcceptCall:
		h.relayLocked(session, m.Kind(), m.To, protocol.KindCallAccepted, func(from protocol.PublicUser) any {
			return protocol.CallAccepted{Answer: m.Answer, User: from}
		})
	case protocol.RejectCall:
		h.relayLocked(session, m.Kind(), m.To, protocol.KindCallRejected, func(from protocol.PublicUser) any {
			return protocol.CallRejected{User: from}
		})
	case protocol.CancelCall:
		h.relayLocked(session, m.Kind(), m.To, protocol.KindCallCanceled, func(from protocol.PublicUser) any {
			return from
		})
	case protocol.Busy:
		h.relayLocked(session, m.Kind(), m.To, protocol.KindBusy, func(from protocol.PublicUser) any {
			return from
		})
	case protocol.BlockUser:
		h.blockLocked(session, m.ID)
	case protocol.UnblockUser:
		h.unblockLocked(session, m.ID)
	case protocol.ListBlocked:
		h.listBlockedLocked(session)
	default:
		h.log.Warn("hub_unhandled_message", "session", session, "type", fmt.Sprintf("%T", msg))
	}
}

// Online returns the number of users in the directory.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Len()
}

// Lookup returns the public view of the user currently registered as id.
func (h *Hub) Lookup(id string) (protocol.PublicUser, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.registry.LookupByLogicalID(id)
	if !ok {
		return protocol.PublicUser{}, false
	}
	return e.Public(), true
}

func (h *Hub) deliverLocked(session string, kind protocol.Kind, payload any) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		h.log.Error("hub_encode_failed", "kind", kind.Name(), "err", err)
		return
	}
	h.sendLocked(session, kind, frame)
}

func (h *Hub) sendLocked(session string, kind protocol.Kind, frame []byte) {
	p, ok := h.peers[session]
	if !ok {
		return
	}
	if !p.Send(frame) {
		h.metrics.Inc(metrics.EventWSSendQueueOverflow)
		h.log.Warn("ws_send_queue_overflow", "session", session, "kind", kind.Name())
	}
}
