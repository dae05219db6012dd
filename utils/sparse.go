package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK is a sparse matrix under construction, converted to CSR once complete.
type DOK struct {
	M *sparse.DOK
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{M: sparse.NewDOK(nr, nc)}
	return
}

// Accumulate adds val into entry (i,j)
func (m DOK) Accumulate(i, j int, val float64) DOK { // Changes receiver
	m.M.Set(i, j, m.M.At(i, j)+val)
	return m
}

func (m DOK) ToCSR() (R CSR) { // Does not change receiver
	R = CSR{M: m.M.ToCSR()}
	return
}

// CSR is the compressed row form used for repeated products
type CSR struct {
	M *sparse.CSR
}

func (m CSR) Dims() (r, c int) { return m.M.Dims() }

// MulVec returns m*x
func (m CSR) MulVec(x []float64) (y []float64) { // Does not change receiver
	var (
		nr, nc = m.Dims()
	)
	if len(x) != nc {
		err := fmt.Errorf("dimension mismatch: matrix has %d columns, vector length is %d", nc, len(x))
		panic(err)
	}
	if nr == 0 || nc == 0 {
		return make([]float64, nr)
	}
	yv := mat.NewVecDense(nr, nil)
	yv.MulVec(m.M, mat.NewVecDense(nc, x))
	y = yv.RawVector().Data
	return
}
