// Package grid holds the block-structured index space, the per-patch field
// storage and the ghost cell exchange for one level of the hierarchy.
package grid

import (
	"fmt"
)

// IntVect is a cell index. Directions beyond the problem dimension stay 0.
type IntVect [3]int

func (iv IntVect) Add(o IntVect) IntVect {
	return IntVect{iv[0] + o[0], iv[1] + o[1], iv[2] + o[2]}
}

func (iv IntVect) Sub(o IntVect) IntVect {
	return IntVect{iv[0] - o[0], iv[1] - o[1], iv[2] - o[2]}
}

func (iv IntVect) Shift(dir, n int) IntVect {
	iv[dir] += n
	return iv
}

func (iv IntVect) Coarsen(r, dim int) IntVect {
	for d := 0; d < dim; d++ {
		iv[d] = floorDiv(iv[d], r)
	}
	return iv
}

func (iv IntVect) Refine(r, dim int) IntVect {
	for d := 0; d < dim; d++ {
		iv[d] *= r
	}
	return iv
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Box is the half open cell range [Lo, Hi)
type Box struct {
	Lo, Hi IntVect
}

func NewBox(lo, hi IntVect) Box {
	return Box{Lo: lo, Hi: hi}
}

// DomainBox makes a box with n cells in each of the first dim directions
func DomainBox(dim int, n IntVect) (b Box) {
	for d := 0; d < 3; d++ {
		b.Hi[d] = 1
		if d < dim {
			b.Hi[d] = n[d]
		}
	}
	return
}

func (b Box) Size(d int) int { return b.Hi[d] - b.Lo[d] }

func (b Box) NumPts() int {
	if b.Empty() {
		return 0
	}
	return b.Size(0) * b.Size(1) * b.Size(2)
}

func (b Box) Empty() bool {
	return b.Hi[0] <= b.Lo[0] || b.Hi[1] <= b.Lo[1] || b.Hi[2] <= b.Lo[2]
}

func (b Box) Contains(iv IntVect) bool {
	return iv[0] >= b.Lo[0] && iv[0] < b.Hi[0] &&
		iv[1] >= b.Lo[1] && iv[1] < b.Hi[1] &&
		iv[2] >= b.Lo[2] && iv[2] < b.Hi[2]
}

func (b Box) ContainsBox(o Box) bool {
	for d := 0; d < 3; d++ {
		if o.Lo[d] < b.Lo[d] || o.Hi[d] > b.Hi[d] {
			return false
		}
	}
	return true
}

// Grow extends the box by n cells on both sides of the first dim directions
func (b Box) Grow(n, dim int) Box {
	for d := 0; d < dim; d++ {
		b.Lo[d] -= n
		b.Hi[d] += n
	}
	return b
}

func (b Box) Intersect(o Box) (r Box) {
	for d := 0; d < 3; d++ {
		r.Lo[d] = max(b.Lo[d], o.Lo[d])
		r.Hi[d] = min(b.Hi[d], o.Hi[d])
	}
	return
}

func (b Box) Refine(r, dim int) Box {
	for d := 0; d < dim; d++ {
		b.Lo[d] *= r
		b.Hi[d] *= r
	}
	return b
}

// Coarsen returns the smallest coarse box covering b
func (b Box) Coarsen(r, dim int) Box {
	for d := 0; d < dim; d++ {
		b.Lo[d] = floorDiv(b.Lo[d], r)
		b.Hi[d] = -floorDiv(-b.Hi[d], r)
	}
	return b
}

// SurroundingNodes converts a cell box into the box of faces normal to dir
func (b Box) SurroundingNodes(dir int) Box {
	b.Hi[dir]++
	return b
}

// Index is the linear offset of iv in the box, x varying fastest
func (b Box) Index(iv IntVect) int {
	var (
		nx, ny = b.Size(0), b.Size(1)
	)
	return (iv[0] - b.Lo[0]) + nx*((iv[1]-b.Lo[1])+ny*(iv[2]-b.Lo[2]))
}

func (b Box) Cell(idx int) (iv IntVect) {
	var (
		nx, ny = b.Size(0), b.Size(1)
	)
	iv[0] = b.Lo[0] + idx%nx
	idx /= nx
	iv[1] = b.Lo[1] + idx%ny
	iv[2] = b.Lo[2] + idx/ny
	return
}

func (b Box) ForEach(fn func(iv IntVect)) {
	var iv IntVect
	for iv[2] = b.Lo[2]; iv[2] < b.Hi[2]; iv[2]++ {
		for iv[1] = b.Lo[1]; iv[1] < b.Hi[1]; iv[1]++ {
			for iv[0] = b.Lo[0]; iv[0] < b.Hi[0]; iv[0]++ {
				fn(iv)
			}
		}
	}
}

// forEachRun visits b one x row at a time, iv being the first of n cells
// that are contiguous in the storage of any box containing them.
func (b Box) forEachRun(fn func(iv IntVect, n int)) {
	if b.Empty() {
		return
	}
	var iv IntVect
	iv[0] = b.Lo[0]
	for iv[2] = b.Lo[2]; iv[2] < b.Hi[2]; iv[2]++ {
		for iv[1] = b.Lo[1]; iv[1] < b.Hi[1]; iv[1]++ {
			fn(iv, b.Size(0))
		}
	}
}

func (b Box) String() string {
	return fmt.Sprintf("(%v,%v)", b.Lo, b.Hi)
}

type BoxArray []Box

// Find returns the index of the box containing iv, or -1
func (ba BoxArray) Find(iv IntVect) int {
	for i, b := range ba {
		if b.Contains(iv) {
			return i
		}
	}
	return -1
}

func (ba BoxArray) Coarsen(r, dim int) (cba BoxArray) {
	cba = make(BoxArray, len(ba))
	for i, b := range ba {
		cba[i] = b.Coarsen(r, dim)
	}
	return
}

func (ba BoxArray) Refine(r, dim int) (fba BoxArray) {
	fba = make(BoxArray, len(ba))
	for i, b := range ba {
		fba[i] = b.Refine(r, dim)
	}
	return
}

func (ba BoxArray) SurroundingNodes(dir int) (fba BoxArray) {
	fba = make(BoxArray, len(ba))
	for i, b := range ba {
		fba[i] = b.SurroundingNodes(dir)
	}
	return
}

func (ba BoxArray) NumPts() (n int) {
	for _, b := range ba {
		n += b.NumPts()
	}
	return
}

// Overlaps reports whether any two boxes share a cell
func (ba BoxArray) Overlaps() bool {
	for i := range ba {
		for j := i + 1; j < len(ba); j++ {
			if !ba[i].Intersect(ba[j]).Empty() {
				return true
			}
		}
	}
	return false
}

// ChopBox splits b into boxes no longer than maxSize in each of the first
// dim directions.
func ChopBox(b Box, maxSize, dim int) (ba BoxArray) {
	ba = BoxArray{b}
	if maxSize <= 0 {
		return
	}
	for d := 0; d < dim; d++ {
		var next BoxArray
		for _, bb := range ba {
			for lo := bb.Lo[d]; lo < bb.Hi[d]; lo += maxSize {
				cb := bb
				cb.Lo[d] = lo
				cb.Hi[d] = min(lo+maxSize, bb.Hi[d])
				next = append(next, cb)
			}
		}
		ba = next
	}
	return
}
