// Package detector implements the per-record orchestrator: dispatch by
// address family, the fixed Policy → Bogon → Symmetric → Flow-Rate filter
// sequence, and first-positive-wins emission (spec.md §4.6).
package detector

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/cesnet/ipspoof-detector/pkg/bogon"
	"github.com/cesnet/ipspoof-detector/pkg/flowrate"
	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/policy"
	"github.com/cesnet/ipspoof-detector/pkg/prefix"
	"github.com/cesnet/ipspoof-detector/pkg/symmetric"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// familyFilters bundles one address family's three decision filters.
type familyFilters struct {
	bogon     *bogon.Filter
	symmetric *symmetric.Table
	flowrate  *flowrate.Filter
}

// Detector is the orchestrator. A single instance owns all per-record
// state for one stream; it is not safe for concurrent use by multiple
// goroutines over the same underlying symmetric/flow-rate state
// (spec.md §5) — callers needing concurrency run one Detector per worker.
type Detector struct {
	v4, v6  familyFilters
	policy  *policy.Engine
	rwTime  uint32
	metrics *metrics.DetectorMetrics
}

// Config collects the constructed filter state a Detector needs. Building
// the prefix tables, mask tables and policy engine is the caller's
// responsibility (pkg/config + cmd/main.go wire them together); this
// keeps Detector itself free of file I/O, matching spec.md §5's "all
// per-record state is owned exclusively by the orchestrator".
type Config struct {
	V4Bogon, V4Specific *prefix.Table
	V6Bogon, V6Specific *prefix.Table
	SymRWTime           uint32
	NFThreshold         uint64
	RotationInterval    uint32
	Policy              *policy.Engine
	Metrics             *metrics.DetectorMetrics
}

func New(cfg Config) *Detector {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewDetectorMetrics()
	}
	d := &Detector{
		v4: familyFilters{
			bogon:     bogon.New(cfg.V4Bogon, cfg.V4Specific),
			symmetric: symmetric.New(ipaddr.V4),
			flowrate:  flowrate.New(ipaddr.V4, cfg.V4Specific, cfg.NFThreshold, cfg.RotationInterval),
		},
		v6: familyFilters{
			bogon:     bogon.New(cfg.V6Bogon, cfg.V6Specific),
			symmetric: symmetric.New(ipaddr.V6),
			flowrate:  flowrate.New(ipaddr.V6, cfg.V6Specific, cfg.NFThreshold, cfg.RotationInterval),
		},
		policy:  cfg.Policy,
		rwTime:  cfg.SymRWTime,
		metrics: m,
	}
	return d
}

// Evaluate runs the full filter sequence for a single record and returns
// the verdict and, when positive, which filter produced it.
func (d *Detector) Evaluate(r *types.FlowRecord) (types.Verdict, string) {
	if d.policy != nil {
		if allow, rule := d.policy.Allow(r); allow {
			logrus.Debugf("policy override %q passed record src=%s dst=%s", rule, r.Src, r.Dst)
			d.metrics.IncrementPolicyPassed()
			return types.SpoofNegative, ""
		}
	}

	var f familyFilters
	if r.Src.Family() == ipaddr.V4 {
		f = d.v4
		d.metrics.IncrementFamily("v4")
	} else {
		f = d.v6
		d.metrics.IncrementFamily("v6")
	}

	if f.bogon.Check(r) == types.SpoofPositive {
		d.metrics.IncrementBogonHit()
		return types.SpoofPositive, "bogon"
	}
	if f.symmetric.Check(r, d.rwTime) == types.SpoofPositive {
		d.metrics.IncrementSymmetricHit()
		return types.SpoofPositive, "symmetric"
	}
	if f.flowrate.Check(r) == types.SpoofPositive {
		d.metrics.IncrementFlowRateHit()
		return types.SpoofPositive, "flowrate"
	}
	return types.SpoofNegative, ""
}

// Stage identifies this processor's position in the pipeline.
func (d *Detector) Stage() types.Stage { return types.StageDetection }

// Name returns the processor's name for logging and metrics.
func (d *Detector) Name() string { return "Detector" }

// CheckReady reports whether the detector is ready to process records.
func (d *Detector) CheckReady() error { return nil }

// MetricsRegistry exposes the detector's Prometheus registry for the admin
// API's /metrics endpoint.
func (d *Detector) MetricsRegistry() *prometheus.Registry { return d.metrics.Registry() }

// MetricsSnapshot returns the current per-filter counters for the admin
// API's /stats endpoint.
func (d *Detector) MetricsSnapshot() map[string]uint64 { return d.metrics.Snapshot() }

// Process runs the detector as a pipeline stage: it reads FlowRecords from
// in, evaluates each, and forwards only the ones flagged as spoofed —
// following the same worker/fan-out shape as the upstream pipeline's other
// processors (pkg/pipeline).
func (d *Detector) Process(ctx context.Context, in <-chan *types.FlowRecord, wg *sync.WaitGroup) (<-chan *types.FlowRecord, error) {
	out := make(chan *types.FlowRecord, 1000)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-in:
				if !ok {
					return
				}
				verdict, filterName := d.Evaluate(r)
				if verdict != types.SpoofPositive {
					continue
				}
				logrus.WithFields(logrus.Fields{
					"src":    r.Src.String(),
					"dst":    r.Dst.String(),
					"filter": filterName,
				}).Warn("possible IP spoofing detected")
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
