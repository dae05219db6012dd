package quadrature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJacobiGL(t *testing.T) {
	X := JacobiGL(0, 0, 1)
	assert.Equal(t, []float64{-1, 1}, X)
	X = JacobiGL(0, 0, 2)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, X, 1.e-14)
	X = JacobiGL(0, 0, 3)
	r := 1 / math.Sqrt(5)
	assert.InDeltaSlice(t, []float64{-1, -r, r, 1}, X, 1.e-14)
	_, W := JacobiGQ(0, 0, 2)
	assert.InDeltaSlice(t, []float64{5. / 9, 8. / 9, 5. / 9}, W, 1.e-14)
}

func TestNodesIntegrationMatrix(t *testing.T) {
	nd, err := NewNodes(GaussLobatto, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, nd.Tau, 1.e-14)
	assert.InDeltaSlice(t, []float64{5. / 24, 1. / 3, -1. / 24}, nd.S.RawRowView(0), 1.e-13)
	assert.InDeltaSlice(t, []float64{-1. / 24, 1. / 3, 5. / 24}, nd.S.RawRowView(1), 1.e-13)
	assert.InDeltaSlice(t, []float64{1. / 6, 2. / 3, 1. / 6}, nd.W, 1.e-13)
	assert.Equal(t, 4, nd.Order())

	for _, nt := range []NodeType{GaussLobatto, Uniform} {
		for n := 2; n <= 6; n++ {
			nd, err := NewNodes(nt, n)
			require.NoError(t, err)
			var wsum float64
			for _, w := range nd.W {
				wsum += w
			}
			assert.InDeltaf(t, 1., wsum, 1.e-12, "%s n=%d", nt, n)
			// Exact for every polynomial of degree below n on each sub-interval
			for p := 0; p < n; p++ {
				f := make([]float64, n)
				for j, tau := range nd.Tau {
					f[j] = math.Pow(tau, float64(p))
				}
				for m := 0; m < nd.NumIntervals(); m++ {
					a, b := nd.Tau[m], nd.Tau[m+1]
					exact := (math.Pow(b, float64(p+1)) - math.Pow(a, float64(p+1))) / float64(p+1)
					assert.InDeltaf(t, 2*exact, nd.Integrate(m, 2, f), 1.e-11,
						"%s n=%d p=%d m=%d", nt, n, p, m)
				}
			}
		}
	}
	_, err = NewNodes(Uniform, 1)
	assert.ErrorIs(t, err, ErrTooFewNodes)
	nt, err := ParseNodeType("Uniform")
	require.NoError(t, err)
	assert.Equal(t, Uniform, nt)
}
