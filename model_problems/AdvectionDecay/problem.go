// Package AdvectionDecay is a periodic density wave advected by first order
// upwinding and decaying through a linear sink. Its time continuous solution
// on the grid is known, which isolates the error of the time integrator.
package AdvectionDecay

import (
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/validation"
)

type Problem struct {
	Velocity        float64 // Along x
	Kappa           float64
	Mean, Amplitude float64
	Dx              float64
	Length          float64 // Period
}

// Exact is the density of the semi-discrete upwind system at cell center x.
// A Fourier mode e^{ikx} evolves with the upwind symbol
// -(a/dx)(1 - e^{-ik dx}) on top of the decay e^{-kappa t}.
func (pr *Problem) Exact(x, t float64) float64 {
	var (
		k      = 2 * math.Pi / pr.Length
		lambda = complex(-pr.Velocity/pr.Dx, 0) * (1 - cmplx.Exp(complex(0, -k*pr.Dx)))
		mode   = cmplx.Exp(lambda*complex(t, 0) + complex(0, k*x))
	)
	return math.Exp(-pr.Kappa*t) * (pr.Mean + pr.Amplitude*real(mode))
}

// Initial fills a state vector at time zero
func (pr *Problem) Initial(x [3]float64, u []float64) {
	u[types.Density] = pr.Exact(x[0], 0)
}

// NewLevel builds the single periodic level [0, Length) of nCells cells
func (pr *Problem) NewLevel(nCells int, cfg advance.Config, logger *slog.Logger) (lv *advance.Level, err error) {
	var (
		layout = types.NewStateLayout(0, 0, 0)
		bc     = [3][2]types.BCFLAG{{types.BC_Periodic, types.BC_Periodic}}
		geom   = grid.NewGeometry(1, grid.IntVect{nCells, 1, 1}, [3]float64{}, [3]float64{pr.Length, 1, 1}, bc)
	)
	pr.Dx = geom.Dx[0]
	lv, err = advance.NewLevel(advance.LevelOptions{
		Geom:      geom,
		BA:        grid.ChopBox(geom.Domain, max(nCells/2, 1), 1),
		Layout:    layout,
		Transport: &Transport{Velocity: [3]float64{pr.Velocity}, ParallelDegree: cfg.ParallelDegree},
		Reactions: &Decay{Kappa: pr.Kappa},
		Validator: &validation.Validator{
			Layout:           layout,
			DensityFloor:     1.e-12,
			SpeciesTolerance: 1.e-8,
			DualEnergyTol:    1.e-3,
			ParallelDegree:   cfg.ParallelDegree,
			Logger:           logger,
		},
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return
	}
	err = lv.Initialize(0, pr.Initial)
	return
}

// MaxError is the largest density error of lv against the exact solution
func (pr *Problem) MaxError(lv *advance.Level, t float64) (e float64) {
	lv.Old.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
		e = math.Max(e, math.Abs(f.Get(iv, types.Density)-pr.Exact(lv.Geom.CellCenter(iv)[0], t)))
	})
	return
}
