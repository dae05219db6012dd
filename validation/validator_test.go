package validation

import (
	"context"
	"math"
	"testing"

	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *Validator {
	return &Validator{
		Layout:           types.NewStateLayout(0, 2, 0),
		DensityFloor:     1.e-6,
		SpeciesTolerance: 1.e-8,
		DualEnergyTol:    1.e-3,
	}
}

func cell(rho, mx, E, e float64, y ...float64) []float64 {
	u := make([]float64, types.NumFixed+len(y))
	u[types.Density], u[types.Xmom], u[types.Eden], u[types.Eint] = rho, mx, E, e
	for k, yk := range y {
		u[types.NumFixed+k] = rho * yk
	}
	return u
}

func TestEnforceMinDensity(t *testing.T) {
	v := newValidator()
	{ // Small positive density is scaled up with its specific values kept
		u := cell(5.e-7, 5.e-7, 1.e-6, 4.e-7, 0.25, 0.75)
		added := v.EnforceMinDensityCell(nil, u)
		assert.InDelta(t, 5.e-7, added, 1.e-20)
		assert.InDelta(t, 1.e-6, u[types.Density], 1.e-20)
		assert.InDelta(t, 1., u[types.Xmom]/u[types.Density], 1.e-12)
		assert.InDelta(t, 0.25, u[types.NumFixed]/u[types.Density], 1.e-12)
	}
	{ // Negative density takes specific values from the old state
		uOld := cell(2, 4, 10, 6, 0.5, 0.5)
		uOld[types.Temp] = 300
		u := cell(-1, 7, 1, 1, 0.1, 0.9)
		added := v.EnforceMinDensityCell(uOld, u)
		assert.InDelta(t, 1+1.e-6, added, 1.e-15)
		assert.InDelta(t, 2.e-6, u[types.Xmom], 1.e-18)
		assert.InDelta(t, 5.e-6, u[types.Eden], 1.e-18)
		assert.InDelta(t, 0.5e-6, u[types.NumFixed], 1.e-18)
		assert.Equal(t, 300., u[types.Temp])
	}
	{
		u := cell(1, 0, 1, 1)
		assert.Equal(t, 0., v.EnforceMinDensityCell(nil, u))
		assert.Equal(t, 1., u[types.Density])
	}
}

func TestEnforceInternalEnergy(t *testing.T) {
	v := newValidator()
	// KE = 0.5 * 4 / 2 = 1, E - KE = 9
	u := cell(2, 2, 10, 9.005)
	assert.Equal(t, energyOK, v.EnforceInternalEnergyCell(u))
	assert.Equal(t, 9.005, u[types.Eint])

	u = cell(2, 2, 10, 8)
	assert.Equal(t, energyReset, v.EnforceInternalEnergyCell(u))
	assert.Equal(t, 9., u[types.Eint])

	u = cell(2, 2, 0.5, 3)
	assert.Equal(t, energyRepaired, v.EnforceInternalEnergyCell(u))
	assert.Equal(t, 4., u[types.Eden])
	assert.Equal(t, 3., u[types.Eint])
}

func TestNormalizeSpecies(t *testing.T) {
	v := newValidator()
	u := cell(2, 0, 1, 1, 0.3, 0.6)
	dev := v.NormalizeSpeciesCell(u)
	assert.InDelta(t, 0.1, dev, 1.e-12)
	assert.InDelta(t, 2., u[types.NumFixed]+u[types.NumFixed+1], 1.e-14)
	assert.InDelta(t, 1./3, u[types.NumFixed]/u[types.Density], 1.e-14)

	// A second application changes nothing
	again := append([]float64(nil), u...)
	assert.Equal(t, 0., v.NormalizeSpeciesCell(again))
	assert.Equal(t, u, again)

	// One factor for every species, a negative partial density included
	u = cell(1, 0, 1, 1, 1.3, -0.1)
	v.NormalizeSpeciesCell(u)
	assert.InDelta(t, -13, u[types.NumFixed]/u[types.NumFixed+1], 1.e-12)
	assert.InDelta(t, 1.3/1.2, u[types.NumFixed], 1.e-14)
	assert.InDelta(t, -0.1/1.2, u[types.NumFixed+1], 1.e-14)
	assert.InDelta(t, 1., u[types.NumFixed]+u[types.NumFixed+1], 1.e-14)
	again = append([]float64(nil), u...)
	assert.Zero(t, v.NormalizeSpeciesCell(again))
	assert.Equal(t, u, again)

	u = cell(1, 0, 1, 1, 0.1, 0.5)
	v.NormalizeSpeciesCell(u)
	assert.InDelta(t, 0.2, u[types.NumFixed]/u[types.NumFixed+1], 1.e-14)

	// Nothing to scale when the species sum is not positive
	u = cell(1, 0, 1, 1, 0, 0)
	v.NormalizeSpeciesCell(u)
	assert.Equal(t, 0.5, u[types.NumFixed])
	u = cell(1, 0, 1, 1, 0.2, -0.3)
	v.NormalizeSpeciesCell(u)
	assert.Equal(t, 0.5, u[types.NumFixed+1])
}

type idealGas float64

func (cv idealGas) Temperature(u []float64) float64 {
	return u[types.Eint] / (u[types.Density] * float64(cv))
}

func TestValidateLevel(t *testing.T) {
	bc := [3][2]types.BCFLAG{{types.BC_Wall, types.BC_Wall}}
	geom := grid.NewGeometry(1, grid.IntVect{8}, [3]float64{}, [3]float64{1}, bc)
	ba := grid.ChopBox(geom.Domain, 4, 1)
	v := newValidator()
	v.EOS = idealGas(2)
	ncomp := v.Layout.NumState()
	old := grid.NewMultiFab(ba, ncomp, 0, 1)
	state := grid.NewMultiFab(ba, ncomp, 0, 1)
	for _, mf := range []*grid.MultiFab{old, state} {
		mf.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
			f.SetCell(iv, cell(1, 0, 2, 2, 0.5, 0.5))
		})
	}
	state.Fabs[1].SetCell(grid.IntVect{6}, cell(-0.5, 0, 2, 2, 0.5, 0.5))
	state.Fabs[0].Set(grid.IntVect{2}, types.NumFixed, 0.6)
	// A covered cell keeps whatever it holds
	mask := eb.Build(geom, ba, 0, eb.Slab(0, 0.125), 4)
	state.Fabs[0].Set(grid.IntVect{0}, types.Density, -3)

	rep, err := v.Validate(context.Background(), old, state, geom, mask)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.DensityFloored)
	assert.InDelta(t, (0.5+1.e-6)*geom.CellVolume(), rep.MassAdded, 1.e-15)
	assert.Equal(t, 1, rep.SpeciesNormalized)
	assert.Equal(t, -0.5, rep.MinDensity)
	assert.Equal(t, 1.e-6, state.Fabs[1].Get(grid.IntVect{6}, types.Density))
	assert.Equal(t, -3., state.Fabs[0].Get(grid.IntVect{0}, types.Density))
	assert.InDelta(t, 1., state.Fabs[0].Get(grid.IntVect{3}, types.Temp), 1.e-15)
	assert.False(t, math.IsNaN(state.Fabs[1].Get(grid.IntVect{6}, types.Temp)))
}
