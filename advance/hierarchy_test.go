package advance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/reactamr/InputParameters"
	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/types"
)

func twoLevelInput(scheme string, stages int) *InputParameters.InputParameters {
	ip := pulseInput(scheme)
	ip.MOLStages = stages
	ip.Refinement = []InputParameters.RefinedRegion{{Level: 1, Lo: [3]int{16}, Hi: [3]int{47}}}
	return ip
}

type countingObserver struct {
	byLevel map[int]int
}

func (co *countingObserver) ObserveStep(s advance.StepSummary) { co.byLevel[s.Level]++ }

func TestTwoLevelConservation(t *testing.T) {
	for _, tc := range []struct {
		scheme string
		stages int
	}{{"MOL", 1}, {"MOL", 2}, {"SDC", 1}} {
		t.Run(tc.scheme, func(t *testing.T) {
			h := newHierarchy(t, twoLevelInput(tc.scheme, tc.stages))
			require.Len(t, h.Levels, 2)
			var (
				crse, fine = h.Levels[0], h.Levels[1]
				obs        = &countingObserver{byLevel: map[int]int{}}
				mass0      = crse.Mask.VolumeWeightedSum(crse.Old, types.Density)
				E0         = crse.Mask.VolumeWeightedSum(crse.Old, types.Eden)
			)
			require.NotNil(t, fine.FluxReg)
			require.NotNil(t, fine.PresReg)
			assert.Same(t, fine, crse.Finer)
			h.Observer = obs
			var refluxed bool
			for s := 0; s < 4; s++ {
				sums, err := h.Advance(context.Background(), h.EstimateTimeStep())
				require.NoError(t, err)
				// Fine sub-steps complete before their parent
				require.Len(t, sums, 3)
				assert.Equal(t, 1, sums[0].Level)
				assert.Equal(t, 0, sums[2].Level)
				for _, st := range sums[2].Reflux {
					refluxed = refluxed || st.NFaces > 0
				}
			}
			assert.True(t, refluxed)
			assert.Equal(t, 4, obs.byLevel[0])
			assert.Equal(t, 8, obs.byLevel[1])
			assert.InDelta(t, fine.TOld, crse.TOld, 1.e-15)
			assert.InDelta(t, mass0, crse.Mask.VolumeWeightedSum(crse.Old, types.Density), 1.e-12)
			assert.InDelta(t, E0, crse.Mask.VolumeWeightedSum(crse.Old, types.Eden), 1.e-11)
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	ip := twoLevelInput("SDC", 1)
	h := newHierarchy(t, ip)
	for s := 0; s < 2; s++ {
		_, err := h.Advance(ctx, h.EstimateTimeStep())
		require.NoError(t, err)
	}
	store, err := checkpoint.OpenBadger("", quiet)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Save(ctx, h.Snapshot()))

	restored := newHierarchy(t, ip)
	s, err := store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(s))
	assert.Equal(t, h.Step, restored.Step)
	assert.Equal(t, h.Time, restored.Time)
	assert.Equal(t, h.Run.RunID, restored.Run.RunID)
	for l := range h.Levels {
		assert.Equal(t, 0., h.Levels[l].Old.DiffNormInf(restored.Levels[l].Old))
		assert.Equal(t, h.Levels[l].TOld, restored.Levels[l].TOld)
	}
	// Both runs continue identically
	dt := h.EstimateTimeStep()
	assert.Equal(t, dt, restored.EstimateTimeStep())
	_, err = h.Advance(ctx, dt)
	require.NoError(t, err)
	_, err = restored.Advance(ctx, dt)
	require.NoError(t, err)
	assert.Equal(t, 0., h.Levels[0].Old.DiffNormInf(restored.Levels[0].Old))

	single := newHierarchy(t, pulseInput("SDC"))
	assert.ErrorIs(t, single.Restore(s), checkpoint.ErrLayoutChanged)
}

func TestHierarchySetupErrors(t *testing.T) {
	_, err := advance.NewHierarchy(nil, 2, nil, quiet)
	assert.ErrorIs(t, err, advance.ErrLevelSetup)

	h := newHierarchy(t, twoLevelInput("MOL", 1))
	_, err = advance.NewHierarchy(h.Levels[1:], 2, nil, quiet)
	assert.ErrorIs(t, err, advance.ErrLevelSetup)
}
