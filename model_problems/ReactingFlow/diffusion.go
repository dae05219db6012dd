package ReactingFlow

import (
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/sources"
	"github.com/notargets/reactamr/types"
)

// Diffuse adds the divergence of the Fourier heat flux and the Fickian
// species fluxes. Species carry their heat of formation into both energies.
func (tr *Transport) Diffuse(bc *sources.BuildContext, p int, dst *grid.Fab) error {
	if tr.Conductivity == 0 && tr.SpeciesDiffusivity == 0 {
		return nil
	}
	var (
		sf     = bc.State.Fabs[p]
		layout = tr.Gas.Layout
		fs, ns = layout.FirstSpec(), layout.NumSpec
		ua, ub = make([]float64, sf.NComp), make([]float64, sf.NComp)
		flux   = make([]float64, ns+1) // Species, then energy
	)
	// faceFlux is the flux density from cell a to cell b, which lies in +d
	faceFlux := func(a, b grid.IntVect, dx float64) {
		sf.GetCell(a, ua)
		sf.GetCell(b, ub)
		var (
			ta, tb = tr.Gas.Primitive(ua).T, tr.Gas.Primitive(ub).T
			rhoF   = 0.5 * (ua[types.Density] + ub[types.Density])
		)
		flux[ns] = -tr.Conductivity * (tb - ta) / dx
		for k := 0; k < ns; k++ {
			ya := ua[fs+k] / ua[types.Density]
			yb := ub[fs+k] / ub[types.Density]
			flux[k] = -rhoF * tr.SpeciesDiffusivity * (yb - ya) / dx
			flux[ns] += flux[k] * tr.Gas.Q[k]
		}
	}
	dst.Box.ForEach(func(iv grid.IntVect) {
		vfrac := bc.Mask.VolumeFraction(p, iv)
		if vfrac == 0 {
			return
		}
		for d := 0; d < bc.Geom.Dim; d++ {
			var (
				dx = bc.Geom.Dx[d]
				hi = iv.Shift(d, 1)
			)
			for _, face := range []struct {
				a, b grid.IntVect
				ap   float64
				sign float64
			}{
				{iv.Shift(d, -1), iv, bc.Mask.FaceAperture(p, d, iv), 1},
				{iv, hi, bc.Mask.FaceAperture(p, d, hi), -1},
			} {
				if face.ap == 0 {
					continue
				}
				faceFlux(face.a, face.b, dx)
				scale := face.sign * face.ap / (dx * vfrac)
				for k := 0; k < ns; k++ {
					dst.Add(iv, fs+k, scale*flux[k])
				}
				dst.Add(iv, types.Eden, scale*flux[ns])
				dst.Add(iv, types.Eint, scale*flux[ns])
			}
		}
	})
	return nil
}
