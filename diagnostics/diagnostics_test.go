package diagnostics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/reactamr/InputParameters"
	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/fluxreg"
	"github.com/notargets/reactamr/model_problems/ReactingFlow"
	"github.com/notargets/reactamr/validation"
)

func TestMetricsObserveStep(t *testing.T) {
	m := NewMetrics(nil)
	s := advance.StepSummary{
		Level:        1,
		Dt:           0.25,
		Scheme:       "SDC",
		Validation:   validation.Report{DensityFloored: 2, MassAdded: 1.e-6, EnergyReset: 1},
		SDCResiduals: []float64{1, 0.1, 0.01},
		BoundaryLoss: [5]float64{0.5, 0, 0, 0, -1},
		Reflux:       []fluxreg.RefluxStats{{NFaces: 2, MaxCorrection: 0.3, MassDelta: 0.125}},
		Elapsed:      3 * time.Millisecond,
	}
	m.ObserveStep(s)
	m.ObserveStep(s)
	assert.Equal(t, 2., testutil.ToFloat64(m.steps.WithLabelValues("1", "SDC")))
	assert.Equal(t, 4., testutil.ToFloat64(m.corrections.WithLabelValues("1", "density_floor")))
	assert.Equal(t, 0., testutil.ToFloat64(m.corrections.WithLabelValues("1", "species_renormal")))
	assert.InDelta(t, 2.e-6, testutil.ToFloat64(m.massAdded), 1.e-18)
	assert.Equal(t, 0.01, testutil.ToFloat64(m.sdcResidual.WithLabelValues("1")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.dt.WithLabelValues("1")))
	assert.Equal(t, 0.3, testutil.ToFloat64(m.refluxMax.WithLabelValues("1")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.refluxMass))
	assert.Equal(t, 1., testutil.ToFloat64(m.boundaryLoss.WithLabelValues("mass")))
	// Inflow is not counted as outflow
	assert.Equal(t, 0., testutil.ToFloat64(m.boundaryLoss.WithLabelValues("energy")))
}

func TestSummarize(t *testing.T) {
	ip := InputParameters.NewInputParameters()
	ip.InitType = "sod"
	ip.Cv = 1
	ip.BCs = map[string][2]string{"x": {"wall", "wall"}}
	require.NoError(t, ip.Validate())
	s, err := ReactingFlow.NewSetup(ip)
	require.NoError(t, err)
	h, err := s.NewHierarchy(ip, NewLogger(false, &bytes.Buffer{}))
	require.NoError(t, err)
	m := NewMetrics(nil)
	h.Observer = m
	_, err = h.Advance(context.Background(), h.EstimateTimeStep())
	require.NoError(t, err)

	ls := Summarize(h)
	require.Len(t, ls, 1)
	assert.Equal(t, 64, ls[0].NumCells)
	assert.InDelta(t, 0.5625, ls[0].Mass, 1.e-12)
	assert.InDelta(t, 0.125, ls[0].MinDensity, 1.e-3)
	assert.InDelta(t, 1, ls[0].MaxDensity, 1.e-3)
	assert.Equal(t, 1., testutil.ToFloat64(m.steps.WithLabelValues("0", "MOL")))

	var buf bytes.Buffer
	Fprint(&buf, ls, h.Run)
	assert.Contains(t, buf.String(), "level 0")
	assert.Contains(t, buf.String(), h.Run.RunID.String())
}

func TestCountInstructionsRunsOnce(t *testing.T) {
	var calls int
	_, err := CountInstructions(func() error {
		calls++
		return nil
	})
	if err != nil {
		assert.ErrorIs(t, err, ErrNoPerfCounters)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	calls = 0
	_, err = CountInstructions(func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(false, &buf).Debug("hidden")
	NewLogger(true, &buf).Debug("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
