package grid

import (
	"errors"
	"fmt"

	"github.com/notargets/reactamr/types"
)

var (
	ErrUncoveredGhost = errors.New("ghost cell not covered by this level and no coarse level to interpolate from")
	ErrNoInflowState  = errors.New("inflow boundary without an inflow state")
)

// GhostFiller fills the ghost cells of a level field at a given time
type GhostFiller interface {
	FillGhost(mf *MultiFab, time float64) error
}

// CoarseSource supplies the two time levels of the next coarser level
type CoarseSource interface {
	TimeLevels() (oldState, newState *MultiFab, tOld, tNew float64)
}

// LevelFiller fills ghost cells from same-level patches, periodic images and
// physical boundary conditions, and interpolates from the coarser level where
// the level does not cover the ghost region.
type LevelFiller struct {
	Geom   Geometry
	BA     BoxArray
	Coarse CoarseSource // nil on the coarsest level
	Ratio  int
	Inflow [3][2][]float64 // Dirichlet states by direction and side
}

type ghostSource struct {
	cell   IntVect
	flip   [3]bool
	inflow []float64
}

// mapGhost folds a ghost cell back into the domain
func (lf *LevelFiller) mapGhost(iv IntVect) (gs ghostSource, err error) {
	var (
		dom = lf.Geom.Domain
	)
	iv = lf.Geom.Periodic(iv)
	for d := 0; d < lf.Geom.Dim; d++ {
		var side types.Side
		switch {
		case iv[d] < dom.Lo[d]:
			side = types.Lo
		case iv[d] >= dom.Hi[d]:
			side = types.Hi
		default:
			continue
		}
		switch lf.Geom.BC[d][side] {
		case types.BC_Wall:
			if side == types.Lo {
				iv[d] = 2*dom.Lo[d] - 1 - iv[d]
			} else {
				iv[d] = 2*dom.Hi[d] - 1 - iv[d]
			}
			gs.flip[d] = true
		case types.BC_In:
			if lf.Inflow[d][side] == nil {
				return gs, fmt.Errorf("%w: direction %d side %d", ErrNoInflowState, d, side)
			}
			gs.inflow = lf.Inflow[d][side]
		default:
			// Outflow extrapolates the nearest interior value
			if side == types.Lo {
				iv[d] = dom.Lo[d]
			} else {
				iv[d] = dom.Hi[d] - 1
			}
		}
	}
	gs.cell = iv
	return
}

func (lf *LevelFiller) FillGhost(mf *MultiFab, time float64) (err error) {
	if mf.NGrow == 0 {
		return
	}
	var (
		vals = make([]float64, mf.NComp)
	)
	for _, f := range mf.Fabs {
		f.GBox.ForEach(func(iv IntVect) {
			if err != nil || f.Box.Contains(iv) {
				return
			}
			var gs ghostSource
			if gs, err = lf.mapGhost(iv); err != nil {
				return
			}
			if gs.inflow != nil {
				f.SetCell(iv, gs.inflow)
				return
			}
			if q := mf.BA.Find(gs.cell); q >= 0 {
				mf.Fabs[q].GetCell(gs.cell, vals)
			} else if err = lf.interpCoarse(gs.cell, time, vals); err != nil {
				err = fmt.Errorf("ghost %v of patch %v: %w", iv, f.Box, err)
				return
			}
			for d := 0; d < 3; d++ {
				if gs.flip[d] && types.Mom(d) < mf.NComp {
					vals[types.Mom(d)] = -vals[types.Mom(d)]
				}
			}
			f.SetCell(iv, vals)
		})
		if err != nil {
			return
		}
	}
	return
}

// interpCoarse is piecewise constant in space and linear in time
func (lf *LevelFiller) interpCoarse(iv IntVect, time float64, vals []float64) error {
	if lf.Coarse == nil {
		return ErrUncoveredGhost
	}
	var (
		crseOld, crseNew, tOld, tNew = lf.Coarse.TimeLevels()
		civ                          = iv.Coarsen(lf.Ratio, lf.Geom.Dim)
		q                            = crseOld.BA.Find(civ)
		alpha                        float64
	)
	if q < 0 {
		return fmt.Errorf("%w: coarse cell %v", ErrUncoveredGhost, civ)
	}
	if tNew > tOld {
		alpha = (time - tOld) / (tNew - tOld)
		alpha = min(max(alpha, 0), 1)
	}
	var (
		fo, fn = crseOld.Fabs[q], crseNew.Fabs[q]
	)
	for n := range vals {
		vals[n] = (1-alpha)*fo.Get(civ, n) + alpha*fn.Get(civ, n)
	}
	return nil
}

// AverageDown replaces coarse cells covered by the fine level with the
// volume fraction weighted average of the fine cells they contain. vfrac may
// be nil for a level without embedded boundaries.
func AverageDown(fine, crse *MultiFab, ratio int, vfrac func(p int, iv IntVect) float64) {
	var (
		dim = fine.Dim
	)
	for fp, ff := range fine.Fabs {
		cbox := ff.Box.Coarsen(ratio, dim)
		for cp, cf := range crse.Fabs {
			region := cbox.Intersect(cf.Box)
			if region.Empty() {
				continue
			}
			region.ForEach(func(civ IntVect) {
				var (
					fbox = Box{Lo: civ, Hi: civ.Add(IntVect{1, 1, 1})}.Refine(ratio, dim)
					sum  = make([]float64, crse.NComp)
					wsum float64
				)
				fbox.Intersect(ff.Box).ForEach(func(fiv IntVect) {
					w := 1.
					if vfrac != nil {
						w = vfrac(fp, fiv)
					}
					wsum += w
					for n := range sum {
						sum[n] += w * ff.Get(fiv, n)
					}
				})
				if wsum == 0 {
					return
				}
				for n := range sum {
					crse.Fabs[cp].Set(civ, n, sum[n]/wsum)
				}
			})
		}
	}
}
