package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Event names used as the `event` label on hanasu_signaling_events_total.
const (
	EventWSConnected         = "ws_connected"
	EventWSDisconnected      = "ws_disconnected"
	EventWSOriginRejected    = "ws_origin_rejected"
	EventWSHandshakeRejected = "ws_handshake_rejected"
	EventWSRateLimited       = "ws_rate_limited"
	EventWSMalformedMessage  = "ws_malformed_message"
	EventWSSendQueueOverflow = "ws_send_queue_overflow"
	EventWSPanic             = "ws_panic"

	EventPresenceRegistered  = "presence_registered"
	EventPresenceReconnected = "presence_reconnected"
	EventPresenceRemoved     = "presence_removed"
	EventPresenceStaleRemove = "presence_stale_remove"

	EventRelayForwarded            = "relay_forwarded"
	EventRelayDroppedUnknownSender = "relay_dropped_unknown_sender"
	EventRelayDroppedUnknownTarget = "relay_dropped_unknown_target"
	EventRelayDroppedBlocked       = "relay_dropped_blocked"

	EventModerationBlock   = "moderation_block"
	EventModerationUnblock = "moderation_unblock"
	EventModerationList    = "moderation_list"
)

// Metrics is a concurrency-safe set of counters backed by a private
// Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	online   prometheus.Gauge
	blockers prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanasu_signaling_events_total",
			Help: "Signaling events by type.",
		}, []string{"event"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hanasu_signaling_online_users",
			Help: "Users currently present in the directory.",
		}),
		blockers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hanasu_moderation_blocklist_owners",
			Help: "Users with a non-empty blocklist.",
		}),
	}
	m.registry.MustRegister(m.events, m.online, m.blockers)
	return m
}

func (m *Metrics) Inc(name string) {
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) Get(name string) uint64 {
	var pb dto.Metric
	if err := m.events.WithLabelValues(name).Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}

func (m *Metrics) SetOnline(n int) {
	m.online.Set(float64(n))
}

func (m *Metrics) Online() int {
	var pb dto.Metric
	if err := m.online.Write(&pb); err != nil {
		return 0
	}
	return int(pb.GetGauge().GetValue())
}

func (m *Metrics) SetBlocklistOwners(n int) {
	m.blockers.Set(float64(n))
}

func (m *Metrics) BlocklistOwners() int {
	var pb dto.Metric
	if err := m.blockers.Write(&pb); err != nil {
		return 0
	}
	return int(pb.GetGauge().GetValue())
}
