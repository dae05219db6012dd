package utils

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Balance of the partitions
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				kMin, kMax := pm.GetBucketRange(np)
				maxK := kMax - kMin
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
}

func TestForEachItem(t *testing.T) {
	pm := NewPartitionMap(4, 37)
	var (
		visited = make([]int32, 37)
	)
	err := pm.ForEachItem(context.Background(), func(ctx context.Context, k int) error {
		atomic.AddInt32(&visited[k], 1)
		return nil
	})
	require.NoError(t, err)
	for k, v := range visited {
		assert.Equalf(t, int32(1), v, "item %d", k)
	}

	boom := errors.New("boom")
	err = pm.ForEachItem(context.Background(), func(ctx context.Context, k int) error {
		if k == 20 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, ParallelDegreeFor(8, 1))
	assert.Equal(t, 1, ParallelDegreeFor(1, 100))
}
