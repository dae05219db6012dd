// Package fluxreg records the fluxes on both sides of a coarse-fine interface
// and applies the conservative correction (reflux) to the coarse level.
package fluxreg

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/utils"
)

var (
	ErrRefluxWithoutAccumulation = errors.New("reflux without coarse and fine flux accumulation")
	ErrRefluxTwice               = errors.New("reflux applied twice for the same coarse interval")
)

// Face is one coarse face on the boundary of the fine region
type Face struct {
	Dir  int
	Cell grid.IntVect // Coarse cell outside the fine region, periodically wrapped
	Face grid.IntVect // Face index in the frame of Cell
	// Sign is -1 when the fine region lies on the high side of Cell
	Sign  float64
	Patch int // Coarse patch holding Cell
}

type fineFace struct {
	dir   int
	face  grid.IntVect // Fine face index
	patch int          // Fine patch holding the interior cell
}

// Register accumulates time and area integrated fluxes in a step-local
// pending epoch that is committed when the step succeeds. One reflux per
// coarse interval consumes the committed sums.
type Register struct {
	CrseGeom grid.Geometry
	CrseBA   grid.BoxArray
	FineBA   grid.BoxArray
	Ratio    int
	NComp    int
	Faces    []Face

	fineFaces []fineFace
	restrict  utils.CSR
	crseArea  [3]float64
	fineArea  [3]float64

	mu                    sync.Mutex
	pending, committed    [2][][]float64 // [crse,fine][comp][face]
	pendingAdded, hasSums [2]bool
	refluxed              bool
}

const (
	crseSide = 0
	fineSide = 1
)

// Define builds the interface faces between the fine boxes (in fine index
// space) and the coarse level.
func Define(crseGeom grid.Geometry, crseBA, fineBA grid.BoxArray, ratio, ncomp int) (r *Register, err error) {
	var (
		dim     = crseGeom.Dim
		cFineBA = fineBA.Coarsen(ratio, dim)
		fgeom   = crseGeom.Refine(ratio)
	)
	r = &Register{
		CrseGeom: crseGeom,
		CrseBA:   crseBA,
		FineBA:   fineBA,
		Ratio:    ratio,
		NComp:    ncomp,
	}
	for d := 0; d < 3; d++ {
		r.crseArea[d] = crseGeom.FaceArea(d)
		r.fineArea[d] = fgeom.FaceArea(d)
	}
	type slotKey struct {
		dir  int
		face grid.IntVect
	}
	var (
		fineSlot = make(map[slotKey]int)
		entries  [][2]int // coarse face, fine slot
	)
	for _, cb := range cFineBA {
		for d := 0; d < dim; d++ {
			for _, sign := range []float64{-1, 1} {
				side := cb
				if sign < 0 {
					side.Lo[d], side.Hi[d] = cb.Lo[d]-1, cb.Lo[d]
				} else {
					side.Lo[d], side.Hi[d] = cb.Hi[d], cb.Hi[d]+1
				}
				side.ForEach(func(oc grid.IntVect) {
					if err != nil {
						return
					}
					if !crseGeom.IsPeriodic(d) && !crseGeom.Domain.Contains(oc) {
						return
					}
					wrapped := crseGeom.Periodic(oc)
					if cFineBA.Find(wrapped) >= 0 {
						return
					}
					q := crseBA.Find(wrapped)
					if q < 0 {
						err = fmt.Errorf("coarse cell %v next to the fine region is not on the coarse level", wrapped)
						return
					}
					var (
						face   = Face{Dir: d, Cell: wrapped, Face: wrapped, Sign: sign, Patch: q}
						fFrame = oc // unwrapped face index
					)
					if sign < 0 {
						face.Face = wrapped.Shift(d, 1)
						fFrame = oc.Shift(d, 1)
					}
					iFace := len(r.Faces)
					r.Faces = append(r.Faces, face)
					// The ratio^(dim-1) fine faces covering this coarse face
					fbox := grid.Box{Lo: fFrame, Hi: fFrame.Add(grid.IntVect{1, 1, 1})}.Refine(ratio, dim)
					fbox.Hi[d] = fbox.Lo[d] + 1
					fbox.ForEach(func(ff grid.IntVect) {
						inner := ff
						if sign > 0 {
							inner = ff.Shift(d, -1)
						}
						key := slotKey{d, ff}
						slot, ok := fineSlot[key]
						if !ok {
							p := fineBA.Find(inner)
							if p < 0 {
								err = fmt.Errorf("fine cell %v on the interface is not on the fine level", inner)
								return
							}
							slot = len(r.fineFaces)
							fineSlot[key] = slot
							r.fineFaces = append(r.fineFaces, fineFace{dir: d, face: ff, patch: p})
						}
						entries = append(entries, [2]int{iFace, slot})
					})
				})
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if len(r.Faces) != 0 {
		R := utils.NewDOK(len(r.Faces), len(r.fineFaces))
		for _, e := range entries {
			R.Accumulate(e[0], e[1], 1)
		}
		r.restrict = R.ToCSR()
	}
	for s := 0; s < 2; s++ {
		n := len(r.Faces)
		if s == fineSide {
			n = len(r.fineFaces)
		}
		r.pending[s] = make([][]float64, ncomp)
		r.committed[s] = make([][]float64, ncomp)
		for c := 0; c < ncomp; c++ {
			r.pending[s][c] = make([]float64, n)
			r.committed[s][c] = make([]float64, n)
		}
	}
	return
}

func (r *Register) NumFaces() int     { return len(r.Faces) }
func (r *Register) NumFineFaces() int { return len(r.fineFaces) }

// CrseAdd adds weight times the coarse flux density on faces normal to dir
// of coarse patch p. flux lives on the faces of the patch box.
func (r *Register) CrseAdd(p, dir int, flux *grid.Fab, weight float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scale := weight * r.crseArea[dir]
	for i, f := range r.Faces {
		if f.Dir != dir || f.Patch != p {
			continue
		}
		for c := 0; c < r.NComp; c++ {
			r.pending[crseSide][c][i] += scale * flux.Get(f.Face, c)
		}
		r.pendingAdded[crseSide] = true
	}
}

// FineAdd adds weight times the fine flux density on faces normal to dir of
// fine patch p.
func (r *Register) FineAdd(p, dir int, flux *grid.Fab, weight float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scale := weight * r.fineArea[dir]
	for i, ff := range r.fineFaces {
		if ff.dir != dir || ff.patch != p {
			continue
		}
		for c := 0; c < r.NComp; c++ {
			r.pending[fineSide][c][i] += scale * flux.Get(ff.face, c)
		}
		r.pendingAdded[fineSide] = true
	}
}

// CommitStep merges the pending epoch into the sums used by the next reflux
func (r *Register) CommitStep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := 0; s < 2; s++ {
		for c := range r.pending[s] {
			floats.Add(r.committed[s][c], r.pending[s][c])
			clear(r.pending[s][c])
		}
		if r.pendingAdded[s] {
			r.hasSums[s] = true
			r.refluxed = false
		}
		r.pendingAdded[s] = false
	}
}

// DiscardStep drops the pending epoch of an aborted step
func (r *Register) DiscardStep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := 0; s < 2; s++ {
		for c := range r.pending[s] {
			clear(r.pending[s][c])
		}
		r.pendingAdded[s] = false
	}
}

type RefluxStats struct {
	NFaces        int
	MaxCorrection float64 // Largest |delta U| applied to any cell component
	SumCorrection float64 // Sum over faces of the largest |delta U| per face
	MassDelta     float64 // Net mass added to the coarse level
}

// Reflux corrects the coarse cells outside the fine region with the
// difference between the fine and coarse integrated fluxes, then clears the
// register. Covered coarse cells receive no correction.
func (r *Register) Reflux(crse *grid.MultiFab, mask *eb.Mask) (st RefluxStats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refluxed {
		return st, ErrRefluxTwice
	}
	if !r.hasSums[crseSide] || !r.hasSums[fineSide] {
		return st, ErrRefluxWithoutAccumulation
	}
	var (
		vol   = r.CrseGeom.CellVolume()
		delta = make([][]float64, r.NComp)
	)
	if len(r.Faces) != 0 {
		for c := 0; c < r.NComp; c++ {
			delta[c] = r.restrict.MulVec(r.committed[fineSide][c])
			floats.Sub(delta[c], r.committed[crseSide][c])
		}
	}
	for i, f := range r.Faces {
		vfrac := 1.
		if mask != nil {
			vfrac = mask.VolumeFraction(f.Patch, f.Cell)
		}
		if vfrac == 0 {
			continue
		}
		var (
			cf      = crse.Fabs[f.Patch]
			faceMax float64
		)
		for c := 0; c < r.NComp; c++ {
			du := f.Sign * delta[c][i] / (vol * vfrac)
			cf.Add(f.Cell, c, du)
			faceMax = math.Max(faceMax, math.Abs(du))
			if c == 0 {
				st.MassDelta += du * vol * vfrac
			}
		}
		st.NFaces++
		st.MaxCorrection = math.Max(st.MaxCorrection, faceMax)
		st.SumCorrection += faceMax
	}
	for s := 0; s < 2; s++ {
		for c := range r.committed[s] {
			clear(r.committed[s][c])
		}
		r.hasSums[s] = false
	}
	r.refluxed = true
	return
}
