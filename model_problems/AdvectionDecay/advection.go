package AdvectionDecay

import (
	"context"
	"math"

	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/utils"
)

// Transport is first order upwind advection of the density at a constant
// velocity. Every other component is left alone.
type Transport struct {
	Velocity       [3]float64
	ParallelDegree int
}

var _ advance.TransportOperator = (*Transport)(nil)

func (tr *Transport) GhostWidth() int     { return 1 }
func (tr *Transport) SplitsPressure() bool { return false }

func (tr *Transport) Evaluate(ctx context.Context, state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask,
	out *advance.TransportResult) error {
	var (
		np = state.NumPatches()
		pm = utils.NewPartitionMap(utils.ParallelDegreeFor(tr.ParallelDegree, np), np)
	)
	for d := 0; d < geom.Dim; d++ {
		out.Flux[d].SetVal(0)
	}
	out.Tendency.SetVal(0)
	return pm.ForEachItem(ctx, func(_ context.Context, p int) error {
		var (
			sf = state.Fabs[p]
			tf = out.Tendency.Fabs[p]
		)
		for d := 0; d < geom.Dim; d++ {
			var (
				a  = tr.Velocity[d]
				ff = out.Flux[d].Fabs[p]
			)
			ff.Box.ForEach(func(iv grid.IntVect) {
				up := iv
				if a > 0 {
					up = iv.Shift(d, -1)
				}
				ff.Set(iv, types.Density, a*sf.Get(up, types.Density)*mask.FaceAperture(p, d, iv))
			})
		}
		tf.Box.ForEach(func(iv grid.IntVect) {
			vfrac := mask.VolumeFraction(p, iv)
			if vfrac == 0 {
				return
			}
			var div float64
			for d := 0; d < geom.Dim; d++ {
				ff := out.Flux[d].Fabs[p]
				div += (ff.Get(iv.Shift(d, 1), types.Density) - ff.Get(iv, types.Density)) / geom.Dx[d]
			}
			tf.Set(iv, types.Density, -div/vfrac)
		})
		return nil
	})
}

func (tr *Transport) MaxRate(_ *grid.MultiFab, geom grid.Geometry, _ *eb.Mask) (rate float64) {
	for d := 0; d < geom.Dim; d++ {
		rate += math.Abs(tr.Velocity[d]) / geom.Dx[d]
	}
	return
}

// Decay is the linear sink dq/dt = -Kappa q on the density, integrated
// exactly over a step with a constant tendency.
type Decay struct {
	Kappa float64
}

var _ advance.ReactionStepper = (*Decay)(nil)

func (dc *Decay) Advance(u, tendency []float64, dt float64) error {
	for n := range u {
		if n != types.Density {
			u[n] += dt * tendency[n]
		}
	}
	if dc.Kappa == 0 {
		u[types.Density] += dt * tendency[types.Density]
		return nil
	}
	var (
		decay = math.Exp(-dc.Kappa * dt)
		F     = tendency[types.Density]
	)
	u[types.Density] = u[types.Density]*decay + F*(1-decay)/dc.Kappa
	return nil
}

func (dc *Decay) Rates(u, dst []float64) error {
	clear(dst)
	dst[types.Density] = -dc.Kappa * u[types.Density]
	return nil
}
