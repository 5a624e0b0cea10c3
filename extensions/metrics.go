package extensions

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	synapse "github.com/synapse-engine/synapse"
)

// MetricsExtension exposes prometheus counters for node starts, node errors
// and wireless sends, a service gauge, and a dispatch latency histogram.
// Queue depth and per-scope active-pulse counts are not exported.
//
// Grounded on the pack's shared idiom of a promauto/prometheus registry
// wired into service instrumentation (r3e-network-service_layer and
// Generativebots-ocx-backend-go-svc both register client_golang
// collectors at construction time); this extension owns its own
// un-auto-registered collectors so a caller decides whether/where to
// expose them via promhttp.Handler (cmd/synapse/main.go).
type MetricsExtension struct {
	synapse.BaseExtension

	NodeStarts   *prometheus.CounterVec
	NodeErrors   *prometheus.CounterVec
	WirelessSent prometheus.Counter
	ServiceCount prometheus.Gauge
	FlowLatency  prometheus.Histogram

	mu            sync.Mutex
	nodeStartedAt map[string]time.Time
}

func NewMetricsExtension() *MetricsExtension {
	return &MetricsExtension{
		BaseExtension: synapse.BaseExtension{ExtensionName: "metrics"},
		NodeStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "node_starts_total",
			Help:      "Number of times a node body was dispatched.",
		}, []string{"node_id"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "node_errors_total",
			Help:      "Number of node dispatch errors.",
		}, []string{"node_id"}),
		WirelessSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "wireless_broadcasts_total",
			Help:      "Number of wireless broadcasts sent.",
		}),
		ServiceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse",
			Name:      "services_registered",
			Help:      "Number of long-lived service nodes currently registered.",
		}),
		FlowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synapse",
			Name:      "node_dispatch_seconds",
			Help:      "Node dispatch duration in seconds, from NODE_START to NODE_STOP.",
			Buckets:   prometheus.DefBuckets,
		}),
		nodeStartedAt: make(map[string]time.Time),
	}
}

// Collectors returns every collector this extension owns, for registration
// against a prometheus.Registerer.
func (m *MetricsExtension) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.NodeStarts, m.NodeErrors, m.WirelessSent, m.ServiceCount, m.FlowLatency}
}

func (m *MetricsExtension) OnNodeStart(nodeID string) {
	m.NodeStarts.WithLabelValues(nodeID).Inc()
	m.mu.Lock()
	m.nodeStartedAt[nodeID] = time.Now()
	m.mu.Unlock()
}

func (m *MetricsExtension) OnNodeStop(nodeID string) {
	m.mu.Lock()
	start, ok := m.nodeStartedAt[nodeID]
	if ok {
		delete(m.nodeStartedAt, nodeID)
	}
	m.mu.Unlock()
	if ok {
		m.FlowLatency.Observe(time.Since(start).Seconds())
	}
}

func (m *MetricsExtension) OnNodeError(nodeID, message string) {
	m.NodeErrors.WithLabelValues(nodeID).Inc()
}

func (m *MetricsExtension) OnWireless(tag string) {
	m.WirelessSent.Inc()
}

func (m *MetricsExtension) OnServiceStart(nodeID string) {
	m.ServiceCount.Inc()
}
