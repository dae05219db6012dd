package utils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix wraps a gonum dense matrix. Field data is stored with one row per
// component and one column per cell, so a component is a contiguous row.
type Matrix struct {
	M        *mat.Dense
	DataP    []float64
	readOnly bool
	name     string
}

func NewMatrix(nr, nc int, dataO ...[]float64) (R Matrix) {
	var m *mat.Dense
	if len(dataO) != 0 {
		if len(dataO[0]) != nr*nc {
			err := fmt.Errorf("mismatch in allocation: NewMatrix nr,nc = %v,%v, len(data[0]) = %v\n", nr, nc, len(dataO[0]))
			panic(err)
		}
		m = mat.NewDense(nr, nc, dataO[0])
	} else {
		m = mat.NewDense(nr, nc, make([]float64, nr*nc))
	}
	R = Matrix{
		M:     m,
		DataP: m.RawMatrix().Data,
		name:  "unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

func (m Matrix) Dims() (r, c int) { return m.M.Dims() }

func (m *Matrix) SetReadOnly(name ...string) Matrix {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

func (m *Matrix) SetWritable() Matrix {
	m.readOnly = false
	return *m
}

func (m Matrix) IsReadOnly() bool { return m.readOnly }

func (m Matrix) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

func (m Matrix) checkDims(A Matrix) {
	nr, nc := m.Dims()
	nrA, ncA := A.Dims()
	if nr != nrA || nc != ncA {
		err := fmt.Errorf("dimension mismatch: [%d,%d] vs [%d,%d]", nr, nc, nrA, ncA)
		panic(err)
	}
}

// Row returns the storage of row i for reading
func (m Matrix) Row(i int) []float64 {
	return m.M.RawRowView(i)
}

// WritableRow returns the storage of row i, writes go through to the matrix.
func (m Matrix) WritableRow(i int) []float64 {
	m.checkWritable()
	return m.M.RawRowView(i)
}

func (m Matrix) CopyFrom(A Matrix) Matrix { // Changes receiver
	m.checkWritable()
	m.checkDims(A)
	copy(m.DataP, A.DataP)
	return m
}

func (m Matrix) Set(i, j int, val float64) Matrix { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, val)
	return m
}

func (m Matrix) SetAll(val float64) Matrix { // Changes receiver
	m.checkWritable()
	if val == 0 {
		m.M.Zero()
		return m
	}
	for i := range m.DataP {
		m.DataP[i] = val
	}
	return m
}

// AddScaled computes m += a*A
func (m Matrix) AddScaled(a float64, A Matrix) Matrix { // Changes receiver
	m.checkWritable()
	m.checkDims(A)
	floats.AddScaled(m.DataP, a, A.DataP)
	return m
}
