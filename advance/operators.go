package advance

import (
	"context"

	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
)

// TransportResult is one evaluation of the hyperbolic operator on a level.
// Flux and PresFlux hold face flux densities already scaled by the face
// aperture, their sum is the full flux. PresFlux is nil when the operator
// does not split out a pressure part.
type TransportResult struct {
	Tendency *grid.MultiFab
	Flux     [3]*grid.MultiFab
	PresFlux [3]*grid.MultiFab
}

func NewTransportResult(ba grid.BoxArray, ncomp, dim int, pressure bool) (res *TransportResult) {
	res = &TransportResult{
		Tendency: grid.NewMultiFab(ba, ncomp, 0, dim),
	}
	for d := 0; d < dim; d++ {
		res.Flux[d] = grid.NewFaceMultiFab(ba, d, ncomp, dim)
		if pressure {
			res.PresFlux[d] = grid.NewFaceMultiFab(ba, d, ncomp, dim)
		}
	}
	return
}

// TransportOperator computes the non-stiff tendency of a ghost filled state
type TransportOperator interface {
	GhostWidth() int
	SplitsPressure() bool
	Evaluate(ctx context.Context, state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask, out *TransportResult) error
	// MaxRate is the largest signal speed over cell width, summed over
	// directions, of any fluid cell.
	MaxRate(state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask) float64
}

// ReactionStepper integrates the stiff chemistry of one cell. Advance
// replaces u with the solution of du/dt = R(u) + tendency after dt.
type ReactionStepper interface {
	Advance(u, tendency []float64, dt float64) error
	Rates(u, dst []float64) error
}

// NoReactions integrates du/dt = tendency exactly
type NoReactions struct{}

func (NoReactions) Advance(u, tendency []float64, dt float64) error {
	for n := range u {
		u[n] += dt * tendency[n]
	}
	return nil
}

func (NoReactions) Rates(_, dst []float64) error {
	clear(dst)
	return nil
}

// Integrator is the per-level time advance
type Integrator interface {
	Advance(ctx context.Context, time, dt float64) (StepSummary, error)
	EstimateTimeStep(dtOld float64) float64
	ErrorEst(threshold float64) []grid.IntVect
	CheckpointWrite() checkpoint.LevelData
}

// StepObserver receives every completed level step
type StepObserver interface {
	ObserveStep(s StepSummary)
}
