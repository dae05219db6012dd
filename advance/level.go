// Package advance moves the state of one AMR level, or a whole hierarchy of
// sub-cycled levels, forward by one time step.
package advance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/fluxreg"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/quadrature"
	"github.com/notargets/reactamr/sources"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/utils"
	"github.com/notargets/reactamr/validation"
)

var tracer = otel.Tracer("reactamr.advance")

type Config struct {
	Scheme             types.Scheme
	MOLStages          int
	SDCIterations      int
	Nodes              *quadrature.Nodes // SDC only
	CFL                float64
	InitShrink         float64
	ChangeMax          float64
	TagDensityGradient float64
	ParallelDegree     int
}

// Level is the state and the collaborators of one refinement level. Old is
// the state at TOld and is only read during a step, New receives the
// advanced state.
type Level struct {
	Lev        int
	Geom       grid.Geometry
	BA         grid.BoxArray
	Layout     types.StateLayout
	Old, New   *grid.MultiFab
	TOld, TNew float64
	Mask       *eb.Mask
	Filler     grid.GhostFiller
	// Interface to the next coarser level, nil on level 0
	FluxReg, PresReg *fluxreg.Register
	Finer            *Level

	Sources   *sources.Accumulator
	Transport TransportOperator
	Reactions ReactionStepper
	Validator *validation.Validator
	Config    Config
	Run       *RunContext
	Logger    *slog.Logger

	scheme scheme
}

// stepState holds the temporaries of one step
type stepState struct {
	time, dt  float64
	srcOld    *grid.MultiFab
	records   []fluxRecord
	residuals []float64
}

type fluxRecord struct {
	res    *TransportResult
	weight float64
}

type scheme interface {
	name() string
	advance(ctx context.Context, lv *Level, st *stepState) error
}

// LevelOptions are the collaborators of a level, the zero value of an
// optional field selects a default.
type LevelOptions struct {
	Lev       int
	Geom      grid.Geometry
	BA        grid.BoxArray
	Layout    types.StateLayout
	Mask      *eb.Mask        // Regular when nil, must cover the transport ghost cells
	Coarser   *Level          // nil on level 0
	Ratio     int             // Refinement ratio to Coarser
	Inflow    [3][2][]float64 // Dirichlet states for inflow boundaries
	Sources   []sources.Module
	Transport TransportOperator
	Reactions ReactionStepper // NoReactions when nil
	Validator *validation.Validator
	Config    Config
	Run       *RunContext
	Logger    *slog.Logger
}

func NewLevel(opt LevelOptions) (lv *Level, err error) {
	if opt.Transport == nil || opt.Validator == nil {
		return nil, fmt.Errorf("%w: level %d needs a transport operator and a validator", ErrLevelSetup, opt.Lev)
	}
	var (
		ncomp = opt.Layout.NumState()
		ngrow = opt.Transport.GhostWidth()
		dim   = opt.Geom.Dim
	)
	lv = &Level{
		Lev:       opt.Lev,
		Geom:      opt.Geom,
		BA:        opt.BA,
		Layout:    opt.Layout,
		Old:       grid.NewMultiFab(opt.BA, ncomp, ngrow, dim),
		New:       grid.NewMultiFab(opt.BA, ncomp, ngrow, dim),
		Mask:      opt.Mask,
		Transport: opt.Transport,
		Reactions: opt.Reactions,
		Validator: opt.Validator,
		Config:    opt.Config,
		Run:       opt.Run,
		Logger:    opt.Logger,
	}
	if lv.Mask == nil {
		lv.Mask = eb.NewRegular(opt.Geom, opt.BA, ngrow)
	}
	if lv.Mask.NGrow < ngrow {
		return nil, fmt.Errorf("%w: mask covers %d ghost cells, transport needs %d", ErrLevelSetup, lv.Mask.NGrow, ngrow)
	}
	if lv.Reactions == nil {
		lv.Reactions = NoReactions{}
	}
	if lv.Run == nil {
		lv.Run = NewRunContext()
	}
	if lv.Logger == nil {
		lv.Logger = slog.Default()
	}
	lv.Logger = lv.Logger.With(slog.String("component", "advance"), slog.Int("level", lv.Lev))
	if lv.Sources, err = sources.NewAccumulator(opt.BA, ncomp, dim, opt.Sources...); err != nil {
		return nil, err
	}
	lv.Sources.ParallelDegree = opt.Config.ParallelDegree
	filler := &grid.LevelFiller{Geom: opt.Geom, BA: opt.BA, Inflow: opt.Inflow}
	if opt.Coarser != nil {
		if opt.Ratio < 2 {
			return nil, fmt.Errorf("%w: level %d refinement ratio %d", ErrLevelSetup, opt.Lev, opt.Ratio)
		}
		filler.Coarse, filler.Ratio = opt.Coarser, opt.Ratio
		if lv.FluxReg, err = fluxreg.Define(opt.Coarser.Geom, opt.Coarser.BA, opt.BA, opt.Ratio, ncomp); err != nil {
			return nil, err
		}
		if opt.Transport.SplitsPressure() {
			if lv.PresReg, err = fluxreg.Define(opt.Coarser.Geom, opt.Coarser.BA, opt.BA, opt.Ratio, ncomp); err != nil {
				return nil, err
			}
		}
		opt.Coarser.Finer = lv
	}
	lv.Filler = filler
	switch opt.Config.Scheme {
	case types.MOL:
		lv.scheme = &molScheme{stages: max(opt.Config.MOLStages, 1)}
	case types.SDC:
		if opt.Config.Nodes == nil {
			return nil, fmt.Errorf("%w: SDC without quadrature nodes", ErrLevelSetup)
		}
		lv.scheme = &sdcScheme{nodes: opt.Config.Nodes, iterations: max(opt.Config.SDCIterations, 1)}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, opt.Config.Scheme)
	}
	return
}

// TimeLevels exposes the two time levels to the ghost fill of the next finer
// level.
func (lv *Level) TimeLevels() (oldState, newState *grid.MultiFab, tOld, tNew float64) {
	return lv.Old, lv.New, lv.TOld, lv.TNew
}

// Initialize sets Old and New from a cell function and applies the body state
func (lv *Level) Initialize(t float64, ic func(x [3]float64, u []float64)) error {
	u := make([]float64, lv.Old.NComp)
	lv.Old.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
		clear(u)
		ic(lv.Geom.CellCenter(iv), u)
		f.SetCell(iv, u)
	})
	if err := lv.Mask.Apply(lv.Old); err != nil {
		return err
	}
	lv.New.CopyFrom(lv.Old)
	lv.TOld, lv.TNew = t, t
	return nil
}

// Swap makes the advanced state the old state of the next step
func (lv *Level) Swap() {
	lv.Old.Copy(lv.New, 0, 0, lv.New.NComp, 0)
	lv.TOld = lv.TNew
}

// filled returns a copy of mf with ghost cells filled at time t
func (lv *Level) filled(mf *grid.MultiFab, t float64) (*grid.MultiFab, error) {
	sb := mf.Clone()
	return sb, lv.fill(sb, t)
}

func (lv *Level) fill(mf *grid.MultiFab, t float64) error {
	if err := lv.Filler.FillGhost(mf, t); err != nil {
		return fmt.Errorf("level %d ghost fill at %g: %w", lv.Lev, t, err)
	}
	return lv.Mask.Apply(mf)
}

func (lv *Level) buildContext(state *grid.MultiFab, t, dt float64) *sources.BuildContext {
	return &sources.BuildContext{
		Level:  lv.Lev,
		Time:   t,
		Dt:     dt,
		State:  state,
		Geom:   lv.Geom,
		Mask:   lv.Mask,
		Layout: lv.Layout,
	}
}

// sumSources builds every enabled source from a ghost filled state and sums
// them into dst.
func (lv *Level) sumSources(ctx context.Context, when sources.Timing, state *grid.MultiFab, t, dt float64, dst *grid.MultiFab) error {
	if err := lv.Sources.BuildAll(ctx, when, lv.buildContext(state, t, dt)); err != nil {
		return err
	}
	lv.Sources.Sum(when, dst)
	return nil
}

func (lv *Level) evaluate(ctx context.Context, state *grid.MultiFab) (res *TransportResult, err error) {
	res = NewTransportResult(lv.BA, lv.Layout.NumState(), lv.Geom.Dim, lv.Transport.SplitsPressure())
	if err = lv.Transport.Evaluate(ctx, state, lv.Geom, lv.Mask, res); err != nil {
		return nil, fmt.Errorf("level %d transport: %w", lv.Lev, err)
	}
	lv.Mask.ZeroInBody(res.Tendency)
	return
}

// react advances every fluid cell of state through the stepper over dt with
// a constant tendency, nil meaning zero.
func (lv *Level) react(ctx context.Context, state, tendency *grid.MultiFab, dt, t float64) error {
	var (
		np = state.NumPatches()
		pm = utils.NewPartitionMap(utils.ParallelDegreeFor(lv.Config.ParallelDegree, np), np)
	)
	err := pm.ForEachItem(ctx, func(_ context.Context, p int) (err error) {
		var (
			f  = state.Fabs[p]
			u  = make([]float64, state.NComp)
			du = make([]float64, state.NComp)
		)
		f.Box.ForEach(func(iv grid.IntVect) {
			if err != nil || lv.Mask.Covered(p, iv) {
				return
			}
			f.GetCell(iv, u)
			if tendency != nil {
				tendency.Fabs[p].GetCell(iv, du)
			}
			if rerr := lv.Reactions.Advance(u, du, dt); rerr != nil {
				err = &ReactionError{Level: lv.Lev, Patch: p, Cell: iv, Time: t, Err: rerr}
				return
			}
			f.SetCell(iv, u)
		})
		return
	})
	if err != nil {
		return err
	}
	return lv.Mask.Apply(state)
}

// rates fills dst with the instantaneous reaction source of state
func (lv *Level) rates(ctx context.Context, state, dst *grid.MultiFab, t float64) error {
	var (
		np = state.NumPatches()
		pm = utils.NewPartitionMap(utils.ParallelDegreeFor(lv.Config.ParallelDegree, np), np)
	)
	dst.SetVal(0)
	return pm.ForEachItem(ctx, func(_ context.Context, p int) (err error) {
		var (
			f = state.Fabs[p]
			u = make([]float64, state.NComp)
			r = make([]float64, state.NComp)
		)
		f.Box.ForEach(func(iv grid.IntVect) {
			if err != nil || lv.Mask.Covered(p, iv) {
				return
			}
			f.GetCell(iv, u)
			if rerr := lv.Reactions.Rates(u, r); rerr != nil {
				err = &ReactionError{Level: lv.Lev, Patch: p, Cell: iv, Time: t, Err: rerr}
				return
			}
			dst.Fabs[p].SetCell(iv, r)
		})
		return
	})
}

// Advance moves Old at time t to New at t+dt. On error Old is untouched, New
// is undefined and nothing reaches the flux registers.
func (lv *Level) Advance(ctx context.Context, t, dt float64) (sum StepSummary, err error) {
	ctx, span := tracer.Start(ctx, "advance.Level.Advance",
		trace.WithAttributes(
			attribute.Int("amr.level", lv.Lev),
			attribute.String("amr.scheme", lv.scheme.name()),
			attribute.Float64("amr.time", t),
			attribute.Float64("amr.dt", dt),
		),
	)
	defer span.End()
	if lv.Old.IsReadOnly() {
		return StepSummary{}, fmt.Errorf("level %d: step at %g started while another is in progress", lv.Lev, t)
	}
	lv.Old.SetReadOnly(fmt.Sprintf("level %d old state", lv.Lev))
	defer lv.Old.SetWritable()
	var (
		start = time.Now()
		st    = &stepState{time: t, dt: dt}
	)
	sum = StepSummary{Level: lv.Lev, Time: t, Dt: dt, Scheme: lv.scheme.name()}
	defer func() {
		if err != nil {
			lv.discard()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	if err = lv.scheme.advance(ctx, lv, st); err != nil {
		return
	}
	sum.BoundaryLoss = lv.record(st.records)
	if sum.Validation, err = lv.Validator.Validate(ctx, lv.Old, lv.New, lv.Geom, lv.Mask); err != nil {
		return
	}
	if err = lv.Mask.Apply(lv.New); err != nil {
		return
	}
	lv.commit()
	lv.TNew = t + dt
	sum.SDCResiduals = st.residuals
	sum.Elapsed = time.Since(start)
	lv.Run.addStep(&sum)
	span.SetAttributes(attribute.Int("amr.corrections", sum.Validation.Corrections()))
	lv.Logger.Debug("level step",
		slog.Float64("time", t),
		slog.Float64("dt", dt),
		slog.Duration("elapsed", sum.Elapsed))
	return
}

// registers lists the flux registers this level writes to, with the side
func (lv *Level) registers(pressure bool) (fine, crse *fluxreg.Register) {
	if pressure {
		fine = lv.PresReg
		if lv.Finer != nil {
			crse = lv.Finer.PresReg
		}
		return
	}
	fine = lv.FluxReg
	if lv.Finer != nil {
		crse = lv.Finer.FluxReg
	}
	return
}

// record adds the weighted face fluxes of every transport evaluation used in
// the step to the registers and returns the material that left the domain
// on level 0.
func (lv *Level) record(records []fluxRecord) (loss [5]float64) {
	for _, pressure := range []bool{false, true} {
		fine, crse := lv.registers(pressure)
		for _, rec := range records {
			fluxes := rec.res.Flux
			if pressure {
				fluxes = rec.res.PresFlux
			}
			for d := 0; d < lv.Geom.Dim; d++ {
				if fluxes[d] == nil {
					continue
				}
				for p, fab := range fluxes[d].Fabs {
					if fine != nil {
						fine.FineAdd(p, d, fab, rec.weight)
					}
					if crse != nil {
						crse.CrseAdd(p, d, fab, rec.weight)
					}
				}
				if lv.Lev == 0 {
					lv.boundaryLoss(fluxes[d], d, rec.weight, &loss)
				}
			}
		}
	}
	return
}

// boundaryLoss integrates the outward flux through non-periodic domain faces
func (lv *Level) boundaryLoss(flux *grid.MultiFab, dir int, weight float64, loss *[5]float64) {
	if lv.Geom.IsPeriodic(dir) {
		return
	}
	var (
		area  = lv.Geom.FaceArea(dir)
		comps = [5]int{types.Density, types.Xmom, types.Ymom, types.Zmom, types.Eden}
	)
	for _, fab := range flux.Fabs {
		fab.Box.ForEach(func(iv grid.IntVect) {
			onBoundary, side := lv.Geom.OnBoundary(dir, iv[dir])
			if !onBoundary {
				return
			}
			sign := 1.
			if side == types.Lo {
				sign = -1
			}
			for i, n := range comps {
				loss[i] += sign * weight * area * fab.Get(iv, n)
			}
		})
	}
}

func (lv *Level) commit() {
	for _, pressure := range []bool{false, true} {
		fine, crse := lv.registers(pressure)
		if fine != nil {
			fine.CommitStep()
		}
		if crse != nil {
			crse.CommitStep()
		}
	}
}

func (lv *Level) discard() {
	for _, pressure := range []bool{false, true} {
		fine, crse := lv.registers(pressure)
		if fine != nil {
			fine.DiscardStep()
		}
		if crse != nil {
			crse.DiscardStep()
		}
	}
}

// EstimateTimeStep applies the CFL limit, shrunk on the first step and
// limited to ChangeMax times the previous step afterwards.
func (lv *Level) EstimateTimeStep(dtOld float64) (dt float64) {
	rate := lv.Transport.MaxRate(lv.Old, lv.Geom, lv.Mask)
	if rate <= 0 {
		dt = math.Inf(1)
	} else {
		dt = lv.Config.CFL / rate
	}
	if dtOld <= 0 {
		return dt * lv.Config.InitShrink
	}
	return math.Min(dt, lv.Config.ChangeMax*dtOld)
}

// ErrorEst tags the fluid cells whose relative density jump to a neighbor
// exceeds threshold.
func (lv *Level) ErrorEst(threshold float64) (tags []grid.IntVect) {
	if threshold <= 0 {
		return
	}
	state, err := lv.filled(lv.Old, lv.TOld)
	if err != nil {
		lv.Logger.Warn("error estimation skipped", slog.Any("error", err))
		return
	}
	for p, f := range state.Fabs {
		f.Box.ForEach(func(iv grid.IntVect) {
			if lv.Mask.Covered(p, iv) {
				return
			}
			rho := f.Get(iv, types.Density)
			for d := 0; d < lv.Geom.Dim; d++ {
				for _, nb := range []grid.IntVect{iv.Shift(d, -1), iv.Shift(d, 1)} {
					if lv.Mask.Covered(p, nb) {
						continue
					}
					if math.Abs(f.Get(nb, types.Density)-rho) > threshold*math.Abs(rho) {
						tags = append(tags, iv)
						return
					}
				}
			}
		})
	}
	return
}

func (lv *Level) CheckpointWrite() checkpoint.LevelData {
	return checkpoint.NewLevelData(lv.Lev, lv.TOld, lv.Old)
}

// CheckpointRestore sets both time levels from a checkpoint
func (lv *Level) CheckpointRestore(ld checkpoint.LevelData) error {
	if err := ld.Restore(lv.Old); err != nil {
		return err
	}
	lv.New.CopyFrom(lv.Old)
	lv.TOld, lv.TNew = ld.Time, ld.Time
	return nil
}
