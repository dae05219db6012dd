package fluxreg

import (
	"testing"

	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodic(dim int, n grid.IntVect) grid.Geometry {
	var bc [3][2]types.BCFLAG
	for d := 0; d < 3; d++ {
		bc[d] = [2]types.BCFLAG{types.BC_Periodic, types.BC_Periodic}
	}
	return grid.NewGeometry(dim, n, [3]float64{}, [3]float64{1, 1, 1}, bc)
}

// fillFlux sets face flux component c to f(face index, dir)
func fillFlux(ba grid.BoxArray, dir, ncomp, dim int, f func(iv grid.IntVect, c int) float64) *grid.MultiFab {
	mf := grid.NewFaceMultiFab(ba, dir, ncomp, dim)
	for _, fab := range mf.Fabs {
		fab.Box.ForEach(func(iv grid.IntVect) {
			for c := 0; c < ncomp; c++ {
				fab.Set(iv, c, f(iv, c))
			}
		})
	}
	return mf
}

func TestReflux1D(t *testing.T) {
	cgeom := periodic(1, grid.IntVect{8})
	cba := grid.ChopBox(cgeom.Domain, 4, 1)
	fba := grid.BoxArray{{Lo: grid.IntVect{4, 0, 0}, Hi: grid.IntVect{8, 1, 1}}}
	r, err := Define(cgeom, cba, fba, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 2, r.NumFaces())
	assert.Equal(t, 2, r.NumFineFaces())
	assert.Equal(t, grid.IntVect{1, 0, 0}, r.Faces[0].Cell)
	assert.Equal(t, grid.IntVect{2, 0, 0}, r.Faces[0].Face)
	assert.Equal(t, -1., r.Faces[0].Sign)
	assert.Equal(t, grid.IntVect{4, 0, 0}, r.Faces[1].Cell)
	assert.Equal(t, 1, r.Faces[1].Patch)

	crse := grid.NewMultiFab(cba, 2, 0, 1)
	_, err = r.Reflux(crse, nil)
	assert.ErrorIs(t, err, ErrRefluxWithoutAccumulation)

	cflux := fillFlux(cba, 0, 2, 1, func(iv grid.IntVect, c int) float64 { return float64(iv[0]) })
	fflux := fillFlux(fba, 0, 2, 1, func(iv grid.IntVect, c int) float64 { return 10 * float64(c+1) })
	dt := 0.1
	for p := range cba {
		r.CrseAdd(p, 0, cflux.Fabs[p], dt)
	}
	r.CommitStep()
	// Two fine sub-steps of dt/2
	for sub := 0; sub < 2; sub++ {
		r.FineAdd(0, 0, fflux.Fabs[0], dt/2)
		r.CommitStep()
	}
	// A discarded epoch leaves no trace
	r.FineAdd(0, 0, fflux.Fabs[0], 100)
	r.DiscardStep()

	st, err := r.Reflux(crse, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, st.NFaces)
	vol := cgeom.CellVolume()
	// Cell 1 high face: coarse flux 2, fine flux 10 (comp 0)
	assert.InDelta(t, -(10-2)*dt/vol, crse.Fabs[0].Get(grid.IntVect{1}, 0), 1.e-12)
	assert.InDelta(t, -(20-2)*dt/vol, crse.Fabs[0].Get(grid.IntVect{1}, 1), 1.e-12)
	// Cell 4 low face: coarse flux 4, fine flux 10
	assert.InDelta(t, (10-4)*dt/vol, crse.Fabs[1].Get(grid.IntVect{4}, 0), 1.e-12)
	assert.InDelta(t, (-8+6)*dt, st.MassDelta, 1.e-12)

	_, err = r.Reflux(crse, nil)
	assert.ErrorIs(t, err, ErrRefluxTwice)
}

// A flux that is the same on coarse and fine faces leaves nothing to correct
func TestRefluxConsistentFlux2D(t *testing.T) {
	cgeom := periodic(2, grid.IntVect{8, 8})
	cba := grid.ChopBox(cgeom.Domain, 4, 2)
	fba := grid.BoxArray{{Lo: grid.IntVect{4, 4, 0}, Hi: grid.IntVect{10, 8, 1}}}
	r, err := Define(cgeom, cba, fba, 2, 1)
	require.NoError(t, err)
	// Coarse footprint is cells [2,5)x[2,4): 2*3 + 2*2 faces
	assert.Equal(t, 10, r.NumFaces())
	assert.Equal(t, 20, r.NumFineFaces())

	dxc, dxf := cgeom.Dx[0], cgeom.Dx[0]/2
	for d := 0; d < 2; d++ {
		// Linear flux density in the transverse coordinate averages exactly
		cflux := fillFlux(cba, d, 1, 2, func(iv grid.IntVect, c int) float64 {
			return 1 + (float64(iv[1-d])+0.5)*dxc
		})
		fflux := fillFlux(fba, d, 1, 2, func(iv grid.IntVect, c int) float64 {
			return 1 + (float64(iv[1-d])+0.5)*dxf
		})
		for p := range cba {
			r.CrseAdd(p, d, cflux.Fabs[p], 1)
		}
		r.FineAdd(0, d, fflux.Fabs[0], 1)
	}
	r.CommitStep()
	crse := grid.NewMultiFab(cba, 1, 0, 2)
	st, err := r.Reflux(crse, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, st.NFaces)
	assert.InDelta(t, 0, st.MaxCorrection, 1.e-12)
}

// A fine flux that varies along the coarse face is summed face by face
func TestRefluxVaryingFineFlux2D(t *testing.T) {
	cgeom := periodic(2, grid.IntVect{8, 8})
	cba := grid.BoxArray{cgeom.Domain}
	fba := grid.BoxArray{{Lo: grid.IntVect{4, 4, 0}, Hi: grid.IntVect{8, 8, 1}}}
	r, err := Define(cgeom, cba, fba, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, r.NumFaces())

	// x faces only, the fine flux is 0,1,2,3 up the fine region
	cflux := fillFlux(cba, 0, 1, 2, func(iv grid.IntVect, c int) float64 { return 0.25 })
	fflux := fillFlux(fba, 0, 1, 2, func(iv grid.IntVect, c int) float64 { return float64(iv[1] - 4) })
	r.CrseAdd(0, 0, cflux.Fabs[0], 1)
	r.FineAdd(0, 0, fflux.Fabs[0], 1)
	r.CommitStep()
	crse := grid.NewMultiFab(cba, 1, 0, 2)
	st, err := r.Reflux(crse, nil)
	require.NoError(t, err)

	// (sum of fine flux * dxf - coarse flux * dxc) / vol with dxf = 1/16,
	// dxc = 1/8 and vol = 1/64
	cf := crse.Fabs[0]
	assert.InDelta(t, -2, cf.Get(grid.IntVect{1, 2}, 0), 1.e-12)
	assert.InDelta(t, -18, cf.Get(grid.IntVect{1, 3}, 0), 1.e-12)
	assert.InDelta(t, 2, cf.Get(grid.IntVect{4, 2}, 0), 1.e-12)
	assert.InDelta(t, 18, cf.Get(grid.IntVect{4, 3}, 0), 1.e-12)
	assert.Equal(t, 0., cf.Get(grid.IntVect{2, 1}, 0))
	assert.Equal(t, 0., cf.Get(grid.IntVect{3, 4}, 0))
	assert.InDelta(t, 18, st.MaxCorrection, 1.e-12)
	assert.InDelta(t, 0, st.MassDelta, 1.e-12)
}

func TestRefluxSkipsCoveredCells(t *testing.T) {
	bc := [3][2]types.BCFLAG{{types.BC_Wall, types.BC_Out}}
	cgeom := grid.NewGeometry(1, grid.IntVect{8}, [3]float64{}, [3]float64{1}, bc)
	cba := grid.BoxArray{cgeom.Domain}
	fba := grid.BoxArray{{Lo: grid.IntVect{4, 0, 0}, Hi: grid.IntVect{8, 1, 1}}}
	r, err := Define(cgeom, cba, fba, 2, 1)
	require.NoError(t, err)
	mask := eb.Build(cgeom, cba, 0, eb.Slab(0, 0.25), 4)
	cflux := fillFlux(cba, 0, 1, 1, func(iv grid.IntVect, c int) float64 { return 0 })
	fflux := fillFlux(fba, 0, 1, 1, func(iv grid.IntVect, c int) float64 { return 1 })
	r.CrseAdd(0, 0, cflux.Fabs[0], 1)
	r.FineAdd(0, 0, fflux.Fabs[0], 1)
	r.CommitStep()
	crse := grid.NewMultiFab(cba, 1, 0, 1)
	st, err := r.Reflux(crse, mask)
	require.NoError(t, err)
	// Cell 1 is covered, only cell 4 is corrected
	assert.Equal(t, 1, st.NFaces)
	assert.Equal(t, 0., crse.Fabs[0].Get(grid.IntVect{1}, 0))
	assert.InDelta(t, 1/cgeom.CellVolume(), crse.Fabs[0].Get(grid.IntVect{4}, 0), 1.e-12)
}

func TestDefineAtPhysicalBoundary(t *testing.T) {
	bc := [3][2]types.BCFLAG{{types.BC_Wall, types.BC_Out}}
	cgeom := grid.NewGeometry(1, grid.IntVect{8}, [3]float64{}, [3]float64{1}, bc)
	cba := grid.BoxArray{cgeom.Domain}
	// Fine region touching the low wall has a single interior interface face
	r, err := Define(cgeom, cba, grid.BoxArray{{Lo: grid.IntVect{0, 0, 0}, Hi: grid.IntVect{4, 1, 1}}}, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 1, r.NumFaces())
	assert.Equal(t, grid.IntVect{2, 0, 0}, r.Faces[0].Cell)
	assert.Equal(t, 1., r.Faces[0].Sign)

	// Periodic wrap puts the low side face on the last coarse cell
	pgeom := periodic(1, grid.IntVect{8})
	r, err = Define(pgeom, grid.BoxArray{pgeom.Domain},
		grid.BoxArray{{Lo: grid.IntVect{0, 0, 0}, Hi: grid.IntVect{4, 1, 1}}}, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 2, r.NumFaces())
	assert.Equal(t, grid.IntVect{7, 0, 0}, r.Faces[0].Cell)
	assert.Equal(t, grid.IntVect{8, 0, 0}, r.Faces[0].Face)
}
