package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/reactamr/utils"
)

// Fab is the field data of one patch: NComp rows over the cells of the valid
// box grown by NGrow.
type Fab struct {
	Box   Box // Valid region
	GBox  Box // Data region
	NComp int
	NGrow int
	Data  utils.Matrix
}

func NewFab(box Box, ncomp, ngrow, dim int) (f *Fab) {
	gbox := box.Grow(ngrow, dim)
	f = &Fab{
		Box:   box,
		GBox:  gbox,
		NComp: ncomp,
		NGrow: ngrow,
		Data:  utils.NewMatrix(ncomp, gbox.NumPts()),
	}
	return
}

func (f *Fab) Index(iv IntVect) int { return f.GBox.Index(iv) }

func (f *Fab) Get(iv IntVect, n int) float64 {
	return f.Data.DataP[n*f.GBox.NumPts()+f.GBox.Index(iv)]
}

func (f *Fab) Set(iv IntVect, n int, val float64) {
	f.Data.Set(n, f.GBox.Index(iv), val)
}

func (f *Fab) Add(iv IntVect, n int, val float64) {
	f.Data.WritableRow(n)[f.GBox.Index(iv)] += val
}

// Comp returns the storage of component n over the data region, for reading
func (f *Fab) Comp(n int) []float64 { return f.Data.Row(n) }

// GetCell gathers all components of cell iv into dst
func (f *Fab) GetCell(iv IntVect, dst []float64) {
	var (
		np  = f.GBox.NumPts()
		idx = f.GBox.Index(iv)
	)
	for n := 0; n < f.NComp; n++ {
		dst[n] = f.Data.DataP[n*np+idx]
	}
}

// SetCell scatters src into all components of cell iv
func (f *Fab) SetCell(iv IntVect, src []float64) {
	idx := f.GBox.Index(iv)
	for n := 0; n < f.NComp; n++ {
		f.Data.WritableRow(n)[idx] = src[n]
	}
}

// MultiFab is a field on every patch of a level
type MultiFab struct {
	BA    BoxArray
	NComp int
	NGrow int
	Dim   int
	Fabs  []*Fab
}

func NewMultiFab(ba BoxArray, ncomp, ngrow, dim int) (mf *MultiFab) {
	mf = &MultiFab{
		BA:    ba,
		NComp: ncomp,
		NGrow: ngrow,
		Dim:   dim,
		Fabs:  make([]*Fab, len(ba)),
	}
	for i, b := range ba {
		mf.Fabs[i] = NewFab(b, ncomp, ngrow, dim)
	}
	return
}

// NewFaceMultiFab holds one value per face normal to dir
func NewFaceMultiFab(ba BoxArray, dir, ncomp, dim int) *MultiFab {
	return NewMultiFab(ba.SurroundingNodes(dir), ncomp, 0, dim)
}

func (mf *MultiFab) NumPatches() int { return len(mf.Fabs) }

// Clone allocates a new MultiFab with the same layout and copies all data
func (mf *MultiFab) Clone() (R *MultiFab) {
	R = NewMultiFab(mf.BA, mf.NComp, mf.NGrow, mf.Dim)
	for i, f := range mf.Fabs {
		R.Fabs[i].Data.CopyFrom(f.Data)
	}
	return
}

// SetReadOnly makes every write through the Fab accessors panic until
// SetWritable is called.
func (mf *MultiFab) SetReadOnly(name string) {
	for p, f := range mf.Fabs {
		f.Data.SetReadOnly(fmt.Sprintf("%s patch %d", name, p))
	}
}

func (mf *MultiFab) SetWritable() {
	for _, f := range mf.Fabs {
		f.Data.SetWritable()
	}
}

func (mf *MultiFab) IsReadOnly() bool {
	return len(mf.Fabs) != 0 && mf.Fabs[0].Data.IsReadOnly()
}

func (mf *MultiFab) SetVal(val float64) {
	for _, f := range mf.Fabs {
		f.Data.SetAll(val)
	}
}

func (mf *MultiFab) checkLayout(src *MultiFab) {
	if len(mf.Fabs) != len(src.Fabs) {
		panic(fmt.Errorf("patch count mismatch: %d vs %d", len(mf.Fabs), len(src.Fabs)))
	}
	for i := range mf.BA {
		if mf.BA[i] != src.BA[i] {
			panic(fmt.Errorf("box mismatch at patch %d: %v vs %v", i, mf.BA[i], src.BA[i]))
		}
	}
}

// Copy copies ncomp components starting at srcComp into dstComp over the
// valid region grown by ngrow.
func (mf *MultiFab) Copy(src *MultiFab, srcComp, dstComp, ncomp, ngrow int) {
	mf.checkLayout(src)
	for i, f := range mf.Fabs {
		var (
			sf     = src.Fabs[i]
			region = f.Box.Grow(ngrow, mf.Dim).Intersect(f.GBox).Intersect(sf.GBox)
		)
		for n := 0; n < ncomp; n++ {
			dst, s := f.Data.WritableRow(dstComp+n), sf.Comp(srcComp+n)
			if f.GBox == sf.GBox && region == f.GBox {
				copy(dst, s)
				continue
			}
			region.forEachRun(func(iv IntVect, nx int) {
				d, k := f.Index(iv), sf.Index(iv)
				copy(dst[d:d+nx], s[k:k+nx])
			})
		}
	}
}

// CopyFrom copies every component over the common data region
func (mf *MultiFab) CopyFrom(src *MultiFab) {
	mf.Copy(src, 0, 0, mf.NComp, min(mf.NGrow, src.NGrow))
}

// Saxpy computes mf += a*src over the valid region grown by ngrow
func (mf *MultiFab) Saxpy(a float64, src *MultiFab, srcComp, dstComp, ncomp, ngrow int) {
	mf.checkLayout(src)
	for i, f := range mf.Fabs {
		var (
			sf     = src.Fabs[i]
			region = f.Box.Grow(ngrow, mf.Dim).Intersect(f.GBox).Intersect(sf.GBox)
		)
		if f.GBox == sf.GBox && region == f.GBox &&
			srcComp == 0 && dstComp == 0 && ncomp == f.NComp && ncomp == sf.NComp {
			f.Data.AddScaled(a, sf.Data)
			continue
		}
		for n := 0; n < ncomp; n++ {
			dst, s := f.Data.WritableRow(dstComp+n), sf.Comp(srcComp+n)
			region.forEachRun(func(iv IntVect, nx int) {
				d, k := f.Index(iv), sf.Index(iv)
				floats.AddScaled(dst[d:d+nx], a, s[k:k+nx])
			})
		}
	}
}

// LinComb sets mf = a*x + b*y over the valid region, all components. mf may
// be x or y.
func (mf *MultiFab) LinComb(a float64, x *MultiFab, b float64, y *MultiFab) {
	mf.checkLayout(x)
	mf.checkLayout(y)
	if mf == y {
		a, x, b, y = b, y, a, x
	}
	if x == y {
		a, b = a+b, 0
	}
	for i, f := range mf.Fabs {
		xf, yf := x.Fabs[i], y.Fabs[i]
		for n := 0; n < mf.NComp; n++ {
			dst, xs, ys := f.Data.WritableRow(n), xf.Comp(n), yf.Comp(n)
			f.Box.forEachRun(func(iv IntVect, nx int) {
				var (
					d    = dst[f.Index(iv):][:nx]
					j, k = xf.Index(iv), yf.Index(iv)
				)
				floats.ScaleTo(d, a, xs[j:j+nx])
				if b != 0 {
					floats.AddScaled(d, b, ys[k:k+nx])
				}
			})
		}
	}
}

// ForEachValid visits every valid cell of every patch
func (mf *MultiFab) ForEachValid(fn func(p int, f *Fab, iv IntVect)) {
	for p, f := range mf.Fabs {
		f.Box.ForEach(func(iv IntVect) {
			fn(p, f, iv)
		})
	}
}

// Sum adds component n over the valid cells
func (mf *MultiFab) Sum(n int) (sum float64) {
	for _, f := range mf.Fabs {
		s := f.Comp(n)
		f.Box.forEachRun(func(iv IntVect, nx int) {
			k := f.Index(iv)
			sum += floats.Sum(s[k : k+nx])
		})
	}
	return
}

// NormInf is the max norm of component n over the valid cells
func (mf *MultiFab) NormInf(n int) (v float64) {
	for _, f := range mf.Fabs {
		s := f.Comp(n)
		f.Box.forEachRun(func(iv IntVect, nx int) {
			k := f.Index(iv)
			v = math.Max(v, floats.Norm(s[k:k+nx], math.Inf(1)))
		})
	}
	return
}

// DiffNormInf is the max norm of mf - o over all valid cells and components
func (mf *MultiFab) DiffNormInf(o *MultiFab) (v float64) {
	mf.checkLayout(o)
	for p, f := range mf.Fabs {
		of := o.Fabs[p]
		for n := 0; n < mf.NComp; n++ {
			xs, ys := f.Comp(n), of.Comp(n)
			f.Box.forEachRun(func(iv IntVect, nx int) {
				j, k := f.Index(iv), of.Index(iv)
				v = math.Max(v, floats.Distance(xs[j:j+nx], ys[k:k+nx], math.Inf(1)))
			})
		}
	}
	return
}

// FirstNonFinite returns the location of the first NaN or Inf in the valid
// region, ok is false if there is none.
func (mf *MultiFab) FirstNonFinite() (p int, iv IntVect, n int, ok bool) {
	for pp, f := range mf.Fabs {
		if utils.IsFinite(f.Data) {
			continue
		}
		var found bool
		f.Box.ForEach(func(cell IntVect) {
			if found {
				return
			}
			for nn := 0; nn < mf.NComp; nn++ {
				if !utils.IsFinite(f.Get(cell, nn)) {
					p, iv, n, found = pp, cell, nn, true
					return
				}
			}
		})
		if found {
			return p, iv, n, true
		}
	}
	return
}
