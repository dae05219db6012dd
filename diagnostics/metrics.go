// Package diagnostics exposes the per-step observations of a run as
// Prometheus metrics and summarizes the state of a hierarchy.
package diagnostics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notargets/reactamr/advance"
)

const namespace = "reactamr"

// Metrics implements advance.StepObserver on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	steps          *prometheus.CounterVec
	stepSeconds    *prometheus.HistogramVec
	corrections    *prometheus.CounterVec
	massAdded      prometheus.Counter
	dt             *prometheus.GaugeVec
	sdcResidual    *prometheus.GaugeVec
	refluxMax      *prometheus.GaugeVec
	refluxMass     prometheus.Gauge
	boundaryLoss   *prometheus.CounterVec
	refluxMassTot  float64
	boundaryLabels [5]string
}

var _ advance.StepObserver = (*Metrics)(nil)

func NewMetrics(reg *prometheus.Registry) (m *Metrics) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m = &Metrics{
		Registry: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Completed level steps by level and scheme",
		}, []string{"level", "scheme"}),
		stepSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_seconds",
			Help:      "Wall time of one level step",
			Buckets:   prometheus.ExponentialBuckets(1.e-4, 4, 10),
		}, []string{"level"}),
		corrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_corrections_total",
			Help:      "Cells repaired by the state validator by kind",
		}, []string{"level", "kind"}),
		massAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "density_floor_mass_added_total",
			Help:      "Mass created by the density floor",
		}),
		dt: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dt",
			Help:      "Last step size by level",
		}, []string{"level"}),
		sdcResidual: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sdc_final_residual",
			Help:      "Change of the end state in the last SDC sweep",
		}, []string{"level"}),
		refluxMax: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reflux_max_correction",
			Help:      "Largest reflux correction applied to a coarse cell",
		}, []string{"level"}),
		refluxMass: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reflux_mass_delta",
			Help:      "Net mass moved by refluxing over the run",
		}),
		boundaryLoss: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_outflow_total",
			Help:      "Material leaving through physical boundaries, inflow excluded",
		}, []string{"quantity"}),
		boundaryLabels: [5]string{"mass", "xmom", "ymom", "zmom", "energy"},
	}
	return
}

func (m *Metrics) ObserveStep(s advance.StepSummary) {
	lev := strconv.Itoa(s.Level)
	m.steps.WithLabelValues(lev, s.Scheme).Inc()
	m.stepSeconds.WithLabelValues(lev).Observe(s.Elapsed.Seconds())
	m.dt.WithLabelValues(lev).Set(s.Dt)
	v := s.Validation
	for kind, n := range map[string]int{
		"density_floor":    v.DensityFloored,
		"energy_reset":     v.EnergyReset,
		"energy_repair":    v.EnergyRepaired,
		"species_renormal": v.SpeciesNormalized,
	} {
		m.corrections.WithLabelValues(lev, kind).Add(float64(n))
	}
	if v.MassAdded > 0 {
		m.massAdded.Add(v.MassAdded)
	}
	if n := len(s.SDCResiduals); n > 0 {
		m.sdcResidual.WithLabelValues(lev).Set(s.SDCResiduals[n-1])
	}
	var maxCorr float64
	for _, st := range s.Reflux {
		maxCorr = max(maxCorr, st.MaxCorrection)
		m.refluxMassTot += st.MassDelta
	}
	if len(s.Reflux) > 0 {
		m.refluxMax.WithLabelValues(lev).Set(maxCorr)
		m.refluxMass.Set(m.refluxMassTot)
	}
	for i, loss := range s.BoundaryLoss {
		if loss > 0 {
			m.boundaryLoss.WithLabelValues(m.boundaryLabels[i]).Add(loss)
		}
	}
}
