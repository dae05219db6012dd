package sources

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

func testLevel(t *testing.T) (*BuildContext, grid.BoxArray) {
	bc := [3][2]types.BCFLAG{{types.BC_Periodic, types.BC_Periodic}}
	geom := grid.NewGeometry(1, grid.IntVect{8}, [3]float64{}, [3]float64{1}, bc)
	ba := grid.ChopBox(geom.Domain, 4, 1)
	layout := types.NewStateLayout(0, 2, 0)
	state := grid.NewMultiFab(ba, layout.NumState(), 1, 1)
	state.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
		f.Set(iv, types.Density, 1.2)
		f.Set(iv, types.Eden, 2.5e5)
	})
	return &BuildContext{State: state, Geom: geom, Layout: layout}, ba
}

func TestForcingFromRest(t *testing.T) {
	bc, ba := testLevel(t)
	acc, err := NewAccumulator(ba, bc.Layout.NumState(), 1,
		&Forcing{Acceleration: [3]float64{2.0}})
	require.NoError(t, err)
	require.NoError(t, acc.BuildAll(context.Background(), OldTime, bc))
	sum := grid.NewMultiFab(ba, bc.Layout.NumState(), 0, 1)
	acc.Sum(OldTime, sum)
	sum.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
		assert.InDelta(t, 2.4, f.Get(iv, types.Xmom), 1.e-15)
		assert.Equal(t, 0., f.Get(iv, types.Density))
		// No work is done on fluid at rest
		assert.Equal(t, 0., f.Get(iv, types.Eden))
	})
	// One forward step of dt = 0.01 gives momentum rho*a*dt
	assert.InDelta(t, 0.024, 0.01*sum.Fabs[0].Get(grid.IntVect{0}, types.Xmom), 1.e-15)
}

type constMMS float64

func (c constMMS) Source(_ [3]float64, _ float64, dst []float64) { dst[types.Density] = float64(c) }

func TestAccumulatorOrderAndErrors(t *testing.T) {
	bc, ba := testLevel(t)
	ncomp := bc.Layout.NumState()
	_, err := NewAccumulator(ba, ncomp, 1, &Spray{}, &Spray{})
	assert.ErrorIs(t, err, ErrDuplicateModule)

	acc, err := NewAccumulator(ba, ncomp, 1,
		&Manufactured{MMS: constMMS(3)}, &Spray{}, &External{Func: func(_ [3]float64, _ float64, _, dst []float64) {
			dst[types.Density] = 1
		}})
	require.NoError(t, err)
	assert.Equal(t, []types.SourceType{types.ExternalSrc, types.SpraySrc, types.ManufacturedSrc}, acc.Active())
	require.NoError(t, acc.BuildAll(context.Background(), NewTime, bc))
	sum := grid.NewMultiFab(ba, ncomp, 0, 1)
	acc.Sum(NewTime, sum)
	assert.Equal(t, 4.*8, sum.Sum(types.Density))
	// The old instances were never built
	acc.Sum(OldTime, sum)
	assert.Equal(t, 0., sum.Sum(types.Density))

	_, err = acc.Field(types.ForcingSrc, OldTime)
	assert.ErrorIs(t, err, ErrNotEnabled)
	assert.ErrorIs(t, acc.Build(context.Background(), types.DiffusionSrc, OldTime, bc), ErrNotEnabled)

	bad, err := NewAccumulator(ba, ncomp, 1, &Manufactured{MMS: constMMS(math.NaN())})
	require.NoError(t, err)
	err = bad.BuildAll(context.Background(), OldTime, bc)
	assert.ErrorIs(t, err, ErrNonFiniteSource)

	empty, err := NewAccumulator(ba, ncomp, 1)
	require.NoError(t, err)
	sum.SetVal(5)
	empty.Sum(OldTime, sum)
	assert.Equal(t, 0., sum.NormInf(types.Density))
}

func TestSourcesZeroInBody(t *testing.T) {
	bc, ba := testLevel(t)
	bc.Mask = eb.Build(bc.Geom, ba, 0, eb.Slab(0, 0.25), 4)
	acc, err := NewAccumulator(ba, bc.Layout.NumState(), 1, &Manufactured{MMS: constMMS(1)})
	require.NoError(t, err)
	require.NoError(t, acc.Build(context.Background(), types.ManufacturedSrc, OldTime, bc))
	f, err := acc.Field(types.ManufacturedSrc, OldTime)
	require.NoError(t, err)
	assert.Equal(t, 0., f.Fabs[0].Get(grid.IntVect{1}, types.Density))
	assert.Equal(t, 1., f.Fabs[0].Get(grid.IntVect{2}, types.Density))
	assert.Equal(t, 6., f.Sum(types.Density))
}

func TestNew(t *testing.T) {
	for st := types.ExternalSrc; st < types.NumSourceTypes; st++ {
		m := New(st)
		require.NotNil(t, m)
		assert.Equal(t, st, m.Kind())
	}
}
