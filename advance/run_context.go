package advance

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/fluxreg"
	"github.com/notargets/reactamr/validation"
)

// RunContext accumulates the diagnostics of a whole run across levels and
// steps. It is checkpointed with the state.
type RunContext struct {
	RunID             uuid.UUID
	MassAdded         float64
	MaterialLost      [5]float64 // Mass, x, y, z momentum, energy through physical boundaries
	DensityFloored    int64
	EnergyReset       int64
	EnergyRepaired    int64
	SpeciesNormalized int64
	RefluxMassDelta   float64
	CPUTime           time.Duration

	mu sync.Mutex
}

func NewRunContext() *RunContext {
	return &RunContext{RunID: uuid.New()}
}

func (rc *RunContext) addStep(s *StepSummary) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v := s.Validation
	rc.MassAdded += v.MassAdded
	rc.DensityFloored += int64(v.DensityFloored)
	rc.EnergyReset += int64(v.EnergyReset)
	rc.EnergyRepaired += int64(v.EnergyRepaired)
	rc.SpeciesNormalized += int64(v.SpeciesNormalized)
	for i := range rc.MaterialLost {
		rc.MaterialLost[i] += s.BoundaryLoss[i]
	}
	rc.CPUTime += s.Elapsed
}

func (rc *RunContext) addReflux(st fluxreg.RefluxStats) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.RefluxMassDelta += st.MassDelta
}

func (rc *RunContext) Record() checkpoint.RunRecord {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return checkpoint.RunRecord{
		RunID:             rc.RunID.String(),
		MassAdded:         rc.MassAdded,
		MaterialLost:      rc.MaterialLost,
		DensityFloored:    rc.DensityFloored,
		EnergyReset:       rc.EnergyReset,
		EnergyRepaired:    rc.EnergyRepaired,
		SpeciesNormalized: rc.SpeciesNormalized,
		RefluxMassDelta:   rc.RefluxMassDelta,
		CPUTime:           rc.CPUTime,
	}
}

// Restore resumes the counters of a checkpointed run
func (rc *RunContext) Restore(r checkpoint.RunRecord) error {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.RunID = id
	rc.MassAdded = r.MassAdded
	rc.MaterialLost = r.MaterialLost
	rc.DensityFloored = r.DensityFloored
	rc.EnergyReset = r.EnergyReset
	rc.EnergyRepaired = r.EnergyRepaired
	rc.SpeciesNormalized = r.SpeciesNormalized
	rc.RefluxMassDelta = r.RefluxMassDelta
	rc.CPUTime = r.CPUTime
	return nil
}

// StepSummary describes one completed step of one level
type StepSummary struct {
	Level        int
	Time         float64 // Start of the step
	Dt           float64
	Scheme       string
	Validation   validation.Report
	SDCResiduals []float64 // Max norm change of the end state per iteration
	BoundaryLoss [5]float64
	Reflux       []fluxreg.RefluxStats // From the next finer level, set after its sub-steps
	Elapsed      time.Duration
}
