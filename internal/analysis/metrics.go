package analysis

// metrics.go mirrors the teacher's pkg/metrics.go noop-vs-Prometheus sink
// split: when the caller opts in with WithMetricsSink(NewPrometheusSink(...)), usage and health
// gauges are published under the memoria_ namespace; otherwise a no-op sink
// absorbs every observation for free.
//
// © 2025 memoria authors. MIT License.

import "github.com/prometheus/client_golang/prometheus"

// metricsSink abstracts the concrete metrics backend away from Engine.
type metricsSink interface {
	observeUsage(usagePercent float64, segmentCount int)
	observeHealth(score float64)
}

type noopSink struct{}

func (noopSink) observeUsage(float64, int) {}
func (noopSink) observeHealth(float64)     {}

// PrometheusSink publishes memoria_usage_percent and memoria_health_score
// gauges, labeled by project_id.
type PrometheusSink struct {
	projectID    string
	usagePercent *prometheus.GaugeVec
	healthScore  *prometheus.GaugeVec
	segmentCount *prometheus.GaugeVec
}

// NewPrometheusSink registers (or reuses, via reg.Register's AlreadyRegisteredError
// handling) the Analysis Engine's gauges against reg, scoped to projectID.
func NewPrometheusSink(reg *prometheus.Registry, projectID string) *PrometheusSink {
	usage := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memoria_usage_percent",
		Help: "Percentage of the configured token budget currently consumed.",
	}, []string{"project_id"})
	health := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memoria_health_score",
		Help: "Composite 0-100 context health score, higher is healthier.",
	}, []string{"project_id"})
	segments := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memoria_segments_total",
		Help: "Number of working-tier segments currently tracked.",
	}, []string{"project_id", "tier"})

	for _, g := range []**prometheus.GaugeVec{&usage, &health, &segments} {
		if err := reg.Register(*g); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
					*g = existing
				}
			} else {
				// Any other registration failure indicates a name
				// collision with an incompatible collector; surfacing it
				// here would require widening this constructor's
				// signature, so it's swallowed like the rest of this
				// best-effort metrics wiring.
				continue
			}
		}
	}

	return &PrometheusSink{projectID: projectID, usagePercent: usage, healthScore: health, segmentCount: segments}
}

func (p *PrometheusSink) observeUsage(usagePercent float64, segmentCount int) {
	p.usagePercent.WithLabelValues(p.projectID).Set(usagePercent)
	p.segmentCount.WithLabelValues(p.projectID, "working").Set(float64(segmentCount))
}

func (p *PrometheusSink) observeHealth(score float64) {
	p.healthScore.WithLabelValues(p.projectID).Set(score)
}
