// Package sources builds the non-hydrodynamic source terms of a level and
// sums them into the single field the time advance consumes.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/utils"
)

var (
	ErrNonFiniteSource = errors.New("non-finite source term")
	ErrNotEnabled      = errors.New("source module not enabled")
	ErrDuplicateModule = errors.New("source module registered twice")
)

// Timing selects the old-time or new-time instance of a source
type Timing uint8

const (
	OldTime Timing = iota
	NewTime
)

func (tm Timing) String() string {
	if tm == NewTime {
		return "new"
	}
	return "old"
}

// BuildContext is the level data a module evaluates its source from. State
// has its ghost cells filled at Time.
type BuildContext struct {
	Level  int
	Time   float64
	Dt     float64
	State  *grid.MultiFab
	Geom   grid.Geometry
	Mask   *eb.Mask
	Layout types.StateLayout
}

// Module fills one source field, patch by patch
type Module interface {
	Kind() types.SourceType
	BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error
}

type entry struct {
	module Module
	fields [2]*grid.MultiFab
}

// Accumulator owns the old and new field of every enabled module. Storage
// exists only for enabled modules.
type Accumulator struct {
	ParallelDegree int
	entries        []*entry
}

func NewAccumulator(ba grid.BoxArray, ncomp, dim int, modules ...Module) (a *Accumulator, err error) {
	a = &Accumulator{}
	seen := make(map[types.SourceType]bool)
	for _, m := range modules {
		if seen[m.Kind()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, m.Kind())
		}
		seen[m.Kind()] = true
		a.entries = append(a.entries, &entry{
			module: m,
			fields: [2]*grid.MultiFab{
				grid.NewMultiFab(ba, ncomp, 0, dim),
				grid.NewMultiFab(ba, ncomp, 0, dim),
			},
		})
	}
	sort.Slice(a.entries, func(i, j int) bool {
		return a.entries[i].module.Kind() < a.entries[j].module.Kind()
	})
	return
}

// Active lists the enabled modules in summation order
func (a *Accumulator) Active() (st []types.SourceType) {
	for _, e := range a.entries {
		st = append(st, e.module.Kind())
	}
	return
}

func (a *Accumulator) find(kind types.SourceType) (*entry, error) {
	for _, e := range a.entries {
		if e.module.Kind() == kind {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotEnabled, kind)
}

// Field returns the stored source of one module
func (a *Accumulator) Field(kind types.SourceType, when Timing) (*grid.MultiFab, error) {
	e, err := a.find(kind)
	if err != nil {
		return nil, err
	}
	return e.fields[when], nil
}

// Build evaluates one module into its old or new field. A NaN or Inf in the
// result is fatal.
func (a *Accumulator) Build(ctx context.Context, kind types.SourceType, when Timing, bc *BuildContext) error {
	e, err := a.find(kind)
	if err != nil {
		return err
	}
	dst := e.fields[when]
	dst.SetVal(0)
	pm := utils.NewPartitionMap(utils.ParallelDegreeFor(a.ParallelDegree, dst.NumPatches()), dst.NumPatches())
	err = pm.ForEachItem(ctx, func(_ context.Context, p int) error {
		if err := e.module.BuildPatch(bc, p, dst.Fabs[p]); err != nil {
			return fmt.Errorf("%s source, patch %d: %w", kind, p, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if bc.Mask != nil {
		bc.Mask.ZeroInBody(dst)
	}
	if p, iv, n, bad := dst.FirstNonFinite(); bad {
		return fmt.Errorf("%w: %s (%s time) level %d patch %d cell %v component %d",
			ErrNonFiniteSource, kind, when, bc.Level, p, iv, n)
	}
	return nil
}

// BuildAll evaluates every enabled module
func (a *Accumulator) BuildAll(ctx context.Context, when Timing, bc *BuildContext) error {
	for _, e := range a.entries {
		if err := a.Build(ctx, e.module.Kind(), when, bc); err != nil {
			return err
		}
	}
	return nil
}

// Sum sets dst to the sum of the enabled fields in the fixed module order.
// With no enabled modules dst is zero.
func (a *Accumulator) Sum(when Timing, dst *grid.MultiFab) {
	dst.SetVal(0)
	for _, e := range a.entries {
		dst.Saxpy(1, e.fields[when], 0, 0, dst.NComp, 0)
	}
}
