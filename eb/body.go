package eb

import (
	"fmt"

	"github.com/notargets/reactamr/grid"
)

// SetBodyState fixes the state vector held in covered cells
func (m *Mask) SetBodyState(state []float64) {
	m.BodyState = append([]float64(nil), state...)
}

// Apply overwrites every covered cell of mf, ghost cells included, with the
// body state.
func (m *Mask) Apply(mf *grid.MultiFab) error {
	if m.Regular() {
		return nil
	}
	if len(m.BodyState) != mf.NComp {
		return fmt.Errorf("body state has %d components, field has %d", len(m.BodyState), mf.NComp)
	}
	for p, f := range mf.Fabs {
		m.CoveredCells(p, func(iv grid.IntVect) {
			if f.GBox.Contains(iv) {
				f.SetCell(iv, m.BodyState)
			}
		})
	}
	return nil
}

// ZeroInBody zeroes every component of mf in covered cells
func (m *Mask) ZeroInBody(mf *grid.MultiFab) {
	for p, f := range mf.Fabs {
		m.CoveredCells(p, func(iv grid.IntVect) {
			if !f.GBox.Contains(iv) {
				return
			}
			for n := 0; n < mf.NComp; n++ {
				f.Set(iv, n, 0)
			}
		})
	}
}

// VolumeWeightedSum adds component n times cell volume times volume fraction
// over the valid cells.
func (m *Mask) VolumeWeightedSum(mf *grid.MultiFab, n int) (sum float64) {
	vol := m.Geom.CellVolume()
	mf.ForEachValid(func(p int, f *grid.Fab, iv grid.IntVect) {
		sum += f.Get(iv, n) * vol * m.VolumeFraction(p, iv)
	})
	return
}

// Slab is the half space x[dir] < pos
func Slab(dir int, pos float64) ImplicitFunction {
	return func(x [3]float64) float64 {
		return x[dir] - pos
	}
}

// Cylinder is a circle of radius r in the x-y plane, extruded in z
func Cylinder(center [3]float64, r float64) ImplicitFunction {
	return func(x [3]float64) float64 {
		dx, dy := x[0]-center[0], x[1]-center[1]
		return dx*dx + dy*dy - r*r
	}
}
