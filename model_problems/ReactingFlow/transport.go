package ReactingFlow

import (
	"context"
	"math"

	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/sources"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/utils"
)

// Transport is the first order Rusanov discretization of the Euler
// equations, with the pressure part of the momentum and energy fluxes kept
// separate. Conductivity and SpeciesDiffusivity drive the diffusion source.
type Transport struct {
	Gas                *Gas
	Conductivity       float64
	SpeciesDiffusivity float64
	ParallelDegree     int
}

var (
	_ advance.TransportOperator = (*Transport)(nil)
	_ sources.Diffuser          = (*Transport)(nil)
)

func (tr *Transport) GhostWidth() int     { return 1 }
func (tr *Transport) SplitsPressure() bool { return true }

func (tr *Transport) Evaluate(ctx context.Context, state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask,
	out *advance.TransportResult) error {
	var (
		np = state.NumPatches()
		pm = utils.NewPartitionMap(utils.ParallelDegreeFor(tr.ParallelDegree, np), np)
	)
	out.Tendency.SetVal(0)
	for d := 0; d < geom.Dim; d++ {
		out.Flux[d].SetVal(0)
		out.PresFlux[d].SetVal(0)
	}
	return pm.ForEachItem(ctx, func(_ context.Context, p int) error {
		var (
			sf     = state.Fabs[p]
			uL, uR = make([]float64, state.NComp), make([]float64, state.NComp)
		)
		for d := 0; d < geom.Dim; d++ {
			var (
				ff = out.Flux[d].Fabs[p]
				pf = out.PresFlux[d].Fabs[p]
			)
			ff.Box.ForEach(func(iv grid.IntVect) {
				ap := mask.FaceAperture(p, d, iv)
				if ap == 0 {
					return
				}
				sf.GetCell(iv.Shift(d, -1), uL)
				sf.GetCell(iv, uR)
				tr.rusanov(d, uL, uR, ap, ff, pf, iv)
			})
		}
		tr.divergence(p, sf, geom, mask, out)
		return nil
	})
}

// rusanov sets the aperture weighted face flux between the cells holding uL
// and uR.
func (tr *Transport) rusanov(d int, uL, uR []float64, ap float64, ff, pf *grid.Fab, iv grid.IntVect) {
	var (
		pl, pr = tr.Gas.Primitive(uL), tr.Gas.Primitive(uR)
		vl, vr = pl.Vel[d], pr.Vel[d]
		s      = math.Max(math.Abs(vl)+pl.C, math.Abs(vr)+pr.C)
	)
	for n := range uL {
		if n == types.Temp {
			continue
		}
		ff.Set(iv, n, ap*(0.5*(uL[n]*vl+uR[n]*vr)-0.5*s*(uR[n]-uL[n])))
	}
	pf.Set(iv, types.Mom(d), ap*0.5*(pl.P+pr.P))
	pf.Set(iv, types.Eden, ap*0.5*(pl.P*vl+pr.P*vr))
}

// divergence forms the tendency of every fluid cell of patch p, adding the
// pressure force of the embedded wall and the p div(u) work on rho e.
func (tr *Transport) divergence(p int, sf *grid.Fab, geom grid.Geometry, mask *eb.Mask, out *advance.TransportResult) {
	var (
		tf    = out.Tendency.Fabs[p]
		ncomp = sf.NComp
		u     = make([]float64, ncomp)
		un    = make([]float64, ncomp)
	)
	tf.Box.ForEach(func(iv grid.IntVect) {
		vfrac := mask.VolumeFraction(p, iv)
		if vfrac == 0 {
			return
		}
		sf.GetCell(iv, u)
		var (
			prim = tr.Gas.Primitive(u)
			divU float64
		)
		for d := 0; d < geom.Dim; d++ {
			var (
				ff, pf = out.Flux[d].Fabs[p], out.PresFlux[d].Fabs[p]
				hi     = iv.Shift(d, 1)
				dx     = geom.Dx[d]
				apLo   = mask.FaceAperture(p, d, iv)
				apHi   = mask.FaceAperture(p, d, hi)
			)
			for n := 0; n < ncomp; n++ {
				div := ff.Get(hi, n) + pf.Get(hi, n) - ff.Get(iv, n) - pf.Get(iv, n)
				tf.Add(iv, n, -div/(dx*vfrac))
			}
			tf.Add(iv, types.Mom(d), prim.P*(apHi-apLo)/(dx*vfrac))
			for _, nb := range []struct {
				cell grid.IntVect
				ap   float64
				sign float64
			}{{iv.Shift(d, -1), apLo, -1}, {hi, apHi, 1}} {
				if nb.ap == 0 {
					continue
				}
				sf.GetCell(nb.cell, un)
				vFace := 0.5 * (prim.Vel[d] + un[types.Mom(d)]/un[types.Density])
				divU += nb.sign * nb.ap * vFace / dx
			}
		}
		tf.Add(iv, types.Eint, -prim.P*divU/vfrac)
		tf.Set(iv, types.Temp, 0)
	})
}

func (tr *Transport) MaxRate(state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask) (rate float64) {
	u := make([]float64, state.NComp)
	state.ForEachValid(func(p int, f *grid.Fab, iv grid.IntVect) {
		if mask.Covered(p, iv) {
			return
		}
		f.GetCell(iv, u)
		if u[types.Density] <= 0 {
			return
		}
		var (
			prim = tr.Gas.Primitive(u)
			r    float64
		)
		for d := 0; d < geom.Dim; d++ {
			r += (math.Abs(prim.Vel[d]) + prim.C) / geom.Dx[d]
		}
		rate = math.Max(rate, r)
	})
	return
}
