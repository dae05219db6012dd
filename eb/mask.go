// Package eb describes the embedded boundary: which cells of a level are
// fully fluid, cut by the body, or covered by it.
package eb

import (
	"fmt"
	"math"

	"github.com/notargets/reactamr/grid"
)

// ImplicitFunction is negative inside the body and positive in the fluid
type ImplicitFunction func(x [3]float64) float64

// Record holds the geometry of one non-regular cell
type Record struct {
	Cell  grid.IntVect
	VFrac float64
	// Aperture[d][side] is the open fraction of the low (0) or high (1) face
	Aperture [3][2]float64
}

func (r Record) Covered() bool { return r.VFrac == 0 }

// patchGeometry is the arena of records for one patch with a sparse index
// from the linear cell offset in the grown patch box.
type patchGeometry struct {
	box     grid.Box
	records []Record
	index   map[int]int
}

// Mask is the cut cell geometry of one level, over the valid region of every
// patch grown by NGrow.
type Mask struct {
	Geom      grid.Geometry
	BA        grid.BoxArray
	NGrow     int
	BodyState []float64
	patches   []patchGeometry
}

// NewRegular builds a mask with no embedded body
func NewRegular(geom grid.Geometry, ba grid.BoxArray, ngrow int) (m *Mask) {
	m = &Mask{
		Geom:    geom,
		BA:      ba,
		NGrow:   ngrow,
		patches: make([]patchGeometry, len(ba)),
	}
	for p, b := range ba {
		m.patches[p] = patchGeometry{box: b.Grow(ngrow, geom.Dim), index: map[int]int{}}
	}
	return
}

// Build samples the implicit function on a sub-grid of every cell and face.
// nSample points per direction are used, a cell gets a record if any of its
// samples falls in the body.
func Build(geom grid.Geometry, ba grid.BoxArray, ngrow int, phi ImplicitFunction, nSample int) (m *Mask) {
	m = NewRegular(geom, ba, ngrow)
	if phi == nil {
		return
	}
	if nSample < 1 {
		nSample = 4
	}
	for p := range m.patches {
		pg := &m.patches[p]
		pg.box.ForEach(func(iv grid.IntVect) {
			rec := Record{Cell: iv, VFrac: volumeFraction(geom, iv, phi, nSample)}
			irregular := rec.VFrac < 1
			for d := 0; d < geom.Dim; d++ {
				for side := 0; side < 2; side++ {
					rec.Aperture[d][side] = areaFraction(geom, iv, d, side, phi, nSample)
					if rec.Aperture[d][side] < 1 {
						irregular = true
					}
				}
			}
			for d := geom.Dim; d < 3; d++ {
				rec.Aperture[d] = [2]float64{1, 1}
			}
			if irregular {
				pg.index[pg.box.Index(iv)] = len(pg.records)
				pg.records = append(pg.records, rec)
			}
		})
	}
	return
}

func sampleOffsets(nSample int) (s []float64) {
	s = make([]float64, nSample)
	for i := range s {
		s[i] = (float64(i) + 0.5) / float64(nSample)
	}
	return
}

func volumeFraction(geom grid.Geometry, iv grid.IntVect, phi ImplicitFunction, nSample int) float64 {
	var (
		s            = sampleOffsets(nSample)
		fluid, total int
		n            [3]int
	)
	for d := 0; d < 3; d++ {
		n[d] = 1
		if d < geom.Dim {
			n[d] = nSample
		}
	}
	for k := 0; k < n[2]; k++ {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				x := samplePoint(geom, iv, [3]float64{s[i], s[j], s[k]})
				if phi(x) >= 0 {
					fluid++
				}
				total++
			}
		}
	}
	return float64(fluid) / float64(total)
}

func areaFraction(geom grid.Geometry, iv grid.IntVect, dir, side int, phi ImplicitFunction, nSample int) float64 {
	var (
		s            = sampleOffsets(nSample)
		fluid, total int
		n            [3]int
	)
	for d := 0; d < 3; d++ {
		n[d] = 1
		if d < geom.Dim && d != dir {
			n[d] = nSample
		}
	}
	for k := 0; k < n[2]; k++ {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				frac := [3]float64{s[i], s[j], s[k]}
				frac[dir] = float64(side)
				if phi(samplePoint(geom, iv, frac)) >= 0 {
					fluid++
				}
				total++
			}
		}
	}
	return float64(fluid) / float64(total)
}

func samplePoint(geom grid.Geometry, iv grid.IntVect, frac [3]float64) (x [3]float64) {
	for d := 0; d < geom.Dim; d++ {
		x[d] = geom.ProbLo[d] + (float64(iv[d])+frac[d])*geom.Dx[d]
	}
	return
}

func (m *Mask) lookup(p int, iv grid.IntVect) (rec *Record, ok bool) {
	pg := &m.patches[p]
	if !pg.box.Contains(iv) {
		panic(fmt.Errorf("cell %v outside mask region %v of patch %d", iv, pg.box, p))
	}
	var i int
	if i, ok = pg.index[pg.box.Index(iv)]; ok {
		rec = &pg.records[i]
	}
	return
}

func (m *Mask) Regular() bool {
	for _, pg := range m.patches {
		if len(pg.records) != 0 {
			return false
		}
	}
	return true
}

// VolumeFraction returns 1 for regular cells, 0 for covered cells
func (m *Mask) VolumeFraction(p int, iv grid.IntVect) float64 {
	if rec, ok := m.lookup(p, iv); ok {
		return rec.VFrac
	}
	return 1
}

func (m *Mask) Covered(p int, iv grid.IntVect) bool {
	return m.VolumeFraction(p, iv) == 0
}

// FaceAperture is the open fraction of the face normal to dir whose high
// side cell is iv. Both adjacent cells are consulted where they are in range
// and the smaller fraction wins.
func (m *Mask) FaceAperture(p int, dir int, iv grid.IntVect) (a float64) {
	a = 1
	var (
		pg = &m.patches[p]
		lo = iv.Shift(dir, -1)
	)
	if pg.box.Contains(iv) {
		if rec, ok := m.lookup(p, iv); ok {
			a = math.Min(a, rec.Aperture[dir][0])
		}
	}
	if pg.box.Contains(lo) {
		if rec, ok := m.lookup(p, lo); ok {
			a = math.Min(a, rec.Aperture[dir][1])
		}
	}
	return
}

// NumCut and NumCovered count the non-regular cells in the valid region
func (m *Mask) NumCut() (n int) {
	for p, pg := range m.patches {
		for _, rec := range pg.records {
			if m.BA[p].Contains(rec.Cell) && rec.VFrac > 0 && rec.VFrac < 1 {
				n++
			}
		}
	}
	return
}

func (m *Mask) NumCovered() (n int) {
	for p, pg := range m.patches {
		for _, rec := range pg.records {
			if m.BA[p].Contains(rec.Cell) && rec.Covered() {
				n++
			}
		}
	}
	return
}

// CoveredCells visits the covered cells of patch p within the mask region
func (m *Mask) CoveredCells(p int, fn func(iv grid.IntVect)) {
	for _, rec := range m.patches[p].records {
		if rec.Covered() {
			fn(rec.Cell)
		}
	}
}
