package eb

import (
	"testing"

	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slabGeometry() (grid.Geometry, grid.BoxArray) {
	bc := [3][2]types.BCFLAG{{types.BC_Wall, types.BC_Out}}
	geom := grid.NewGeometry(1, grid.IntVect{8}, [3]float64{}, [3]float64{1}, bc)
	return geom, grid.ChopBox(geom.Domain, 4, 1)
}

func TestSlabMask(t *testing.T) {
	geom, ba := slabGeometry()
	// Body occupies [0, 0.3125): cells 0,1 covered, cell 2 half cut
	m := Build(geom, ba, 1, Slab(0, 0.3125), 4)
	assert.False(t, m.Regular())
	assert.Equal(t, 0., m.VolumeFraction(0, grid.IntVect{0}))
	assert.Equal(t, 0., m.VolumeFraction(0, grid.IntVect{1}))
	assert.Equal(t, 0.5, m.VolumeFraction(0, grid.IntVect{2}))
	assert.Equal(t, 1., m.VolumeFraction(0, grid.IntVect{3}))
	assert.Equal(t, 1., m.VolumeFraction(1, grid.IntVect{6}))
	assert.True(t, m.Covered(0, grid.IntVect{-1}))
	assert.Equal(t, 2, m.NumCovered())
	assert.Equal(t, 1, m.NumCut())

	// Face between cells 1 and 2 sits in the body, the one between 2 and 3 is open
	assert.Equal(t, 0., m.FaceAperture(0, 0, grid.IntVect{2}))
	assert.Equal(t, 1., m.FaceAperture(0, 0, grid.IntVect{3}))
	assert.Equal(t, 1., m.FaceAperture(1, 0, grid.IntVect{5}))
	assert.Panics(t, func() { m.VolumeFraction(1, grid.IntVect{0}) })
}

func TestApplyBodyState(t *testing.T) {
	geom, ba := slabGeometry()
	m := Build(geom, ba, 1, Slab(0, 0.25), 2)
	mf := grid.NewMultiFab(ba, 3, 1, 1)
	mf.SetVal(7)
	assert.Error(t, m.Apply(mf))
	m.SetBodyState([]float64{1, 0, 2.5})
	require.NoError(t, m.Apply(mf))
	f := mf.Fabs[0]
	assert.Equal(t, 1., f.Get(grid.IntVect{-1}, 0))
	assert.Equal(t, 2.5, f.Get(grid.IntVect{1}, 2))
	assert.Equal(t, 7., f.Get(grid.IntVect{2}, 0))
	// vfrac weighted sum skips the two covered cells
	assert.InDelta(t, 7*6*0.125, m.VolumeWeightedSum(mf, 0), 1.e-14)

	m.ZeroInBody(mf)
	assert.Equal(t, 0., f.Get(grid.IntVect{0}, 2))
	assert.Equal(t, 7., f.Get(grid.IntVect{3}, 2))

	reg := NewRegular(geom, ba, 1)
	require.NoError(t, reg.Apply(mf))
	assert.Equal(t, 1., reg.FaceAperture(0, 0, grid.IntVect{0}))
}

func TestCylinderMask2D(t *testing.T) {
	bc := [3][2]types.BCFLAG{{types.BC_Out, types.BC_Out}, {types.BC_Out, types.BC_Out}}
	geom := grid.NewGeometry(2, grid.IntVect{16, 16}, [3]float64{}, [3]float64{1, 1}, bc)
	ba := grid.ChopBox(geom.Domain, 8, 2)
	m := Build(geom, ba, 0, Cylinder([3]float64{0.5, 0.5}, 0.2), 8)
	var area float64
	for p, b := range ba {
		b.ForEach(func(iv grid.IntVect) {
			area += (1 - m.VolumeFraction(p, iv)) * geom.CellVolume()
		})
	}
	// Sampled body area approaches pi r^2
	assert.InDelta(t, 3.14159265*0.04, area, 2.e-3)
	assert.Greater(t, m.NumCut(), 0)
	assert.Greater(t, m.NumCovered(), 0)
}
