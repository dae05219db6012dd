package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrix(t *testing.T) {
	A := NewMatrix(2, 3, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float64{4, 5, 6}, A.Row(1))
	B := NewMatrix(2, 3).CopyFrom(A)
	B.AddScaled(1, A)
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, B.DataP)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, A.DataP)
	B.WritableRow(0)[1] = -1
	B.Set(1, 2, 7)
	assert.Equal(t, []float64{2, -1, 6, 8, 10, 7}, B.DataP)
	B.SetAll(0)
	assert.Equal(t, make([]float64, 6), B.DataP)
	B.SetAll(3)
	assert.Equal(t, []float64{3, 3, 3, 3, 3, 3}, B.DataP)

	A.SetReadOnly("A")
	assert.True(t, A.IsReadOnly())
	assert.Panics(t, func() { A.Set(0, 0, 1) })
	assert.Panics(t, func() { A.WritableRow(0) })
	assert.Panics(t, func() { A.SetAll(0) })
	assert.Panics(t, func() { A.AddScaled(1, B) })
	assert.NotPanics(t, func() { A.Row(0) })
	A.SetWritable()
	assert.False(t, A.IsReadOnly())
	A.Set(0, 0, 9)
	assert.Equal(t, 9., A.DataP[0])
	assert.Panics(t, func() { B.AddScaled(1, NewMatrix(3, 2)) })

	assert.True(t, IsFinite(A))
	C := NewMatrix(1, 2, []float64{1, math.Inf(1)})
	assert.False(t, IsFinite(C))
	assert.False(t, IsFinite(math.NaN()))
	assert.Contains(t, GetMemUsage(), "MiB")
}

func TestSparseRestriction(t *testing.T) {
	// Sum pairs of fine values onto two coarse slots
	R := NewDOK(2, 4)
	R.Accumulate(0, 0, 1).Accumulate(0, 1, 1)
	R.Accumulate(1, 2, 0.5).Accumulate(1, 2, 0.5).Accumulate(1, 3, 1)
	csr := R.ToCSR()
	y := csr.MulVec([]float64{1, 2, 3, 4})
	assert.InDeltaSlice(t, []float64{3, 7}, y, 1.e-14)
	assert.Panics(t, func() { csr.MulVec([]float64{1}) })
}
