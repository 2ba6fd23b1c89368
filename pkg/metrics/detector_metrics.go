package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics tracks per-filter hit counts and record totals by
// address family, both as plain atomics (for /stats) and, on each
// increment, as counters in a Prometheus registry (for /metrics). The
// policy pass-through count is kept only as an atomic.
type DetectorMetrics struct {
	v4Records       uint64
	v6Records       uint64
	bogonHits       uint64
	symmetricHits   uint64
	flowRateHits    uint64
	policyPassed    uint64

	registry *prometheus.Registry
	promVecs *promVectors
}

type promVectors struct {
	records   *prometheus.CounterVec
	spoofHits *prometheus.CounterVec
}

// NewDetectorMetrics creates a metrics holder with its own Prometheus
// registry, so that tests and multiple Detector instances don't collide on
// the global default registry.
func NewDetectorMetrics() *DetectorMetrics {
	reg := prometheus.NewRegistry()
	vecs := &promVectors{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipspoof_records_total",
			Help: "Flow records evaluated, by address family.",
		}, []string{"family"}),
		spoofHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipspoof_spoof_hits_total",
			Help: "Records flagged as spoofed, by filter.",
		}, []string{"filter"}),
	}
	reg.MustRegister(vecs.records, vecs.spoofHits)
	return &DetectorMetrics{registry: reg, promVecs: vecs}
}

// Registry exposes the Prometheus registry for the admin API's /metrics
// handler.
func (m *DetectorMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *DetectorMetrics) IncrementFamily(family string) {
	switch family {
	case "v4":
		atomic.AddUint64(&m.v4Records, 1)
	case "v6":
		atomic.AddUint64(&m.v6Records, 1)
	}
	m.promVecs.records.WithLabelValues(family).Inc()
}

func (m *DetectorMetrics) IncrementBogonHit() {
	atomic.AddUint64(&m.bogonHits, 1)
	m.promVecs.spoofHits.WithLabelValues("bogon").Inc()
}

func (m *DetectorMetrics) IncrementSymmetricHit() {
	atomic.AddUint64(&m.symmetricHits, 1)
	m.promVecs.spoofHits.WithLabelValues("symmetric").Inc()
}

func (m *DetectorMetrics) IncrementFlowRateHit() {
	atomic.AddUint64(&m.flowRateHits, 1)
	m.promVecs.spoofHits.WithLabelValues("flowrate").Inc()
}

func (m *DetectorMetrics) IncrementPolicyPassed() {
	atomic.AddUint64(&m.policyPassed, 1)
}

// Snapshot returns the current counters for the /stats admin endpoint.
func (m *DetectorMetrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"v4_records":     atomic.LoadUint64(&m.v4Records),
		"v6_records":     atomic.LoadUint64(&m.v6Records),
		"bogon_hits":     atomic.LoadUint64(&m.bogonHits),
		"symmetric_hits": atomic.LoadUint64(&m.symmetricHits),
		"flowrate_hits":  atomic.LoadUint64(&m.flowRateHits),
		"policy_passed":  atomic.LoadUint64(&m.policyPassed),
	}
}
