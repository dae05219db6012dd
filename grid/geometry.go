package grid

import (
	"github.com/notargets/reactamr/types"
)

// Geometry maps a level's index space onto physical space
type Geometry struct {
	Dim            int
	Domain         Box
	ProbLo, ProbHi [3]float64
	Dx             [3]float64
	BC             [3][2]types.BCFLAG
}

func NewGeometry(dim int, nCells IntVect, probLo, probHi [3]float64,
	bc [3][2]types.BCFLAG) (g Geometry) {
	g = Geometry{
		Dim:    dim,
		Domain: DomainBox(dim, nCells),
		ProbLo: probLo,
		ProbHi: probHi,
		BC:     bc,
	}
	for d := 0; d < 3; d++ {
		g.Dx[d] = 1
		if d < dim {
			g.Dx[d] = (probHi[d] - probLo[d]) / float64(nCells[d])
		}
	}
	return
}

func (g Geometry) IsPeriodic(dir int) bool {
	return dir < g.Dim && g.BC[dir][types.Lo] == types.BC_Periodic
}

func (g Geometry) CellVolume() (v float64) {
	v = 1
	for d := 0; d < g.Dim; d++ {
		v *= g.Dx[d]
	}
	return
}

// FaceArea is the area of a full face normal to dir
func (g Geometry) FaceArea(dir int) (a float64) {
	a = 1
	for d := 0; d < g.Dim; d++ {
		if d != dir {
			a *= g.Dx[d]
		}
	}
	return
}

func (g Geometry) CellCenter(iv IntVect) (x [3]float64) {
	for d := 0; d < g.Dim; d++ {
		x[d] = g.ProbLo[d] + (float64(iv[d])+0.5)*g.Dx[d]
	}
	return
}

// Refine returns the geometry of the next finer level
func (g Geometry) Refine(r int) (fg Geometry) {
	fg = g
	fg.Domain = g.Domain.Refine(r, g.Dim)
	for d := 0; d < g.Dim; d++ {
		fg.Dx[d] = g.Dx[d] / float64(r)
	}
	return
}

// Periodic maps iv into the domain along periodic directions
func (g Geometry) Periodic(iv IntVect) IntVect {
	for d := 0; d < g.Dim; d++ {
		if !g.IsPeriodic(d) {
			continue
		}
		n := g.Domain.Size(d)
		for iv[d] < g.Domain.Lo[d] {
			iv[d] += n
		}
		for iv[d] >= g.Domain.Hi[d] {
			iv[d] -= n
		}
	}
	return iv
}

// OnBoundary reports whether the face normal to dir with index f lies on a
// non-periodic physical boundary, and on which side.
func (g Geometry) OnBoundary(dir, f int) (onBoundary bool, side types.Side) {
	if g.IsPeriodic(dir) {
		return
	}
	switch f {
	case g.Domain.Lo[dir]:
		return true, types.Lo
	case g.Domain.Hi[dir]:
		return true, types.Hi
	}
	return
}
