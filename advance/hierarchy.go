package advance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/fluxreg"
	"github.com/notargets/reactamr/grid"
)

// Hierarchy sub-cycles a stack of levels: each finer level takes Ratio steps
// per step of its parent, after which the parent is refluxed and overwritten
// by the average of the fine data it covers.
type Hierarchy struct {
	Levels   []*Level
	Ratio    int
	Run      *RunContext
	Logger   *slog.Logger
	Observer StepObserver
	FixedDt  float64

	Time float64
	Step int
	Dt   float64 // Last coarse step
}

func NewHierarchy(levels []*Level, ratio int, run *RunContext, logger *slog.Logger) (h *Hierarchy, err error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: empty hierarchy", ErrLevelSetup)
	}
	for l, lv := range levels {
		if lv.Lev != l {
			return nil, fmt.Errorf("%w: level %d stored at position %d", ErrLevelSetup, lv.Lev, l)
		}
		if l > 0 && lv.FluxReg == nil {
			return nil, fmt.Errorf("%w: level %d has no flux register", ErrLevelSetup, l)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if run == nil {
		run = levels[0].Run
	}
	for _, lv := range levels {
		lv.Run = run
	}
	h = &Hierarchy{
		Levels: levels,
		Ratio:  ratio,
		Run:    run,
		Logger: logger.With(slog.String("component", "hierarchy")),
		Time:   levels[0].TOld,
	}
	return
}

// EstimateTimeStep returns the coarse step allowed by every level
func (h *Hierarchy) EstimateTimeStep() float64 {
	if h.FixedDt > 0 {
		return h.FixedDt
	}
	var (
		dt    = math.Inf(1)
		scale = 1.
		dtOld = h.Dt
	)
	for _, lv := range h.Levels {
		dt = math.Min(dt, scale*lv.EstimateTimeStep(dtOld/scale))
		scale *= float64(h.Ratio)
	}
	return dt
}

// Advance takes one coarse step of dt. A failed step is fatal to the run:
// the failing level keeps its old state but finer levels may have moved.
func (h *Hierarchy) Advance(ctx context.Context, dt float64) (summaries []StepSummary, err error) {
	ctx, span := tracer.Start(ctx, "advance.Hierarchy.Advance",
		trace.WithAttributes(
			attribute.Int("amr.step", h.Step),
			attribute.Int("amr.levels", len(h.Levels)),
			attribute.Float64("amr.dt", dt),
		),
	)
	defer span.End()
	if err = h.advanceLevel(ctx, 0, h.Time, dt, &summaries); err != nil {
		span.RecordError(err)
		return
	}
	h.Time += dt
	h.Dt = dt
	h.Step++
	return
}

func (h *Hierarchy) advanceLevel(ctx context.Context, lev int, t, dt float64, out *[]StepSummary) (err error) {
	lv := h.Levels[lev]
	sum, err := lv.Advance(ctx, t, dt)
	if err != nil {
		return
	}
	if lev+1 < len(h.Levels) {
		var (
			fine = h.Levels[lev+1]
			dtf  = dt / float64(h.Ratio)
		)
		for i := 0; i < h.Ratio; i++ {
			if err = h.advanceLevel(ctx, lev+1, t+float64(i)*dtf, dtf, out); err != nil {
				return
			}
		}
		for _, reg := range []*fluxreg.Register{fine.FluxReg, fine.PresReg} {
			if reg == nil {
				continue
			}
			var st fluxreg.RefluxStats
			if st, err = reg.Reflux(lv.New, lv.Mask); err != nil {
				if errors.Is(err, fluxreg.ErrRefluxWithoutAccumulation) && reg.NumFaces() == 0 {
					err = nil
					continue
				}
				return fmt.Errorf("level %d reflux: %w", lev, err)
			}
			sum.Reflux = append(sum.Reflux, st)
			h.Run.addReflux(st)
		}
		grid.AverageDown(fine.New, lv.New, h.Ratio, fine.Mask.VolumeFraction)
		if err = lv.Mask.Apply(lv.New); err != nil {
			return
		}
	}
	lv.Swap()
	*out = append(*out, sum)
	if h.Observer != nil {
		h.Observer.ObserveStep(sum)
	}
	return
}

// ErrorEst tags cells on every level
func (h *Hierarchy) ErrorEst() (tags [][]grid.IntVect) {
	tags = make([][]grid.IntVect, len(h.Levels))
	for l, lv := range h.Levels {
		tags[l] = lv.ErrorEst(lv.Config.TagDensityGradient)
	}
	return
}

func (h *Hierarchy) Snapshot() *checkpoint.Snapshot {
	s := &checkpoint.Snapshot{
		Step: h.Step,
		Time: h.Time,
		Dt:   h.Dt,
		Run:  h.Run.Record(),
	}
	for _, lv := range h.Levels {
		s.Levels = append(s.Levels, lv.CheckpointWrite())
	}
	return s
}

// Restore resumes from a snapshot taken on the same level layout
func (h *Hierarchy) Restore(s *checkpoint.Snapshot) error {
	if len(s.Levels) != len(h.Levels) {
		return fmt.Errorf("%w: %d levels, stored %d", checkpoint.ErrLayoutChanged, len(h.Levels), len(s.Levels))
	}
	for l, lv := range h.Levels {
		if err := lv.CheckpointRestore(s.Levels[l]); err != nil {
			return err
		}
	}
	if err := h.Run.Restore(s.Run); err != nil {
		return err
	}
	h.Step, h.Time, h.Dt = s.Step, s.Time, s.Dt
	return nil
}
