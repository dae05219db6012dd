package ReactingFlow

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/notargets/reactamr/InputParameters"
	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/quadrature"
	"github.com/notargets/reactamr/sources"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/validation"
)

var ErrUnknownSetup = errors.New("unknown problem setup")

type InitType uint8

const (
	UNIFORM InitType = iota
	SOD
	PULSE
	MMS
)

var InitNames = map[string]InitType{
	"uniform": UNIFORM,
	"sod":     SOD,
	"pulse":   PULSE,
	"mms":     MMS,
}

// Setup is everything problem specific about a run: the gas and its
// operators, the initial state, the body and the inflow states.
type Setup struct {
	Init      InitType
	Gas       *Gas
	Transport *Transport
	Chemistry *Arrhenius
	MMS       *DecayingDensity
	Body      eb.ImplicitFunction // nil without a body
	BodyState []float64
	Inflow    [3][2][]float64
	domainLo  [3]float64
	domainHi  [3]float64
}

func NewSetup(ip *InputParameters.InputParameters) (s *Setup, err error) {
	it, ok := InitNames[strings.ToLower(ip.InitType)]
	if !ok {
		return nil, fmt.Errorf("%w: init type %q", ErrUnknownSetup, ip.InitType)
	}
	var (
		layout = ip.StateLayout()
		gas    = NewGas(ip.Gamma, ip.Cv, ip.Chemistry.HeatRelease, layout)
	)
	s = &Setup{
		Init: it,
		Gas:  gas,
		Transport: &Transport{
			Gas:                gas,
			Conductivity:       ip.Diffusion.Conductivity,
			SpeciesDiffusivity: ip.Diffusion.SpeciesDiffusivity,
			ParallelDegree:     ip.ParallelDegree,
		},
		Chemistry: &Arrhenius{
			Gas:            gas,
			PreExponential: ip.Chemistry.PreExponential,
			ActivationTemp: ip.Chemistry.ActivationTemp,
			SubSteps:       ip.Chemistry.SubSteps,
			MaxNewtonIter:  ip.Chemistry.MaxNewtonIter,
		},
		MMS:      &DecayingDensity{Amplitude: 0.1, Wavenumber: 2 * math.Pi / (ip.ProbHi[0] - ip.ProbLo[0]), Layout: layout},
		domainLo: ip.ProbLo,
		domainHi: ip.ProbHi,
	}
	switch strings.ToLower(ip.Body) {
	case "":
	case "slab":
		if len(ip.BodyPosition) < 1 {
			return nil, fmt.Errorf("%w: slab body needs its position", ErrUnknownSetup)
		}
		s.Body = eb.Slab(0, ip.BodyPosition[0])
	case "cylinder":
		if len(ip.BodyPosition) < 3 {
			return nil, fmt.Errorf("%w: cylinder body needs center x, y and radius", ErrUnknownSetup)
		}
		s.Body = eb.Cylinder([3]float64{ip.BodyPosition[0], ip.BodyPosition[1]}, ip.BodyPosition[2])
	default:
		return nil, fmt.Errorf("%w: body %q", ErrUnknownSetup, ip.Body)
	}
	s.BodyState = make([]float64, layout.NumState())
	gas.Conserved(1, [3]float64{}, 1, s.fuel(), s.BodyState)

	bc := ip.BCFlags()
	for d := 0; d < ip.Dim; d++ {
		for side := 0; side < 2; side++ {
			if bc[d][side] != types.BC_In {
				continue
			}
			var x [3]float64
			for dd := 0; dd < ip.Dim; dd++ {
				x[dd] = 0.5 * (ip.ProbLo[dd] + ip.ProbHi[dd])
			}
			x[d] = ip.ProbLo[d]
			if side == 1 {
				x[d] = ip.ProbHi[d]
			}
			s.Inflow[d][side] = make([]float64, layout.NumState())
			s.Initial(x, s.Inflow[d][side])
		}
	}
	return
}

// fuel is the mass fraction vector of pure species A
func (s *Setup) fuel() (Y []float64) {
	Y = make([]float64, s.Gas.Layout.NumSpec)
	if len(Y) > 0 {
		Y[0] = 1
	}
	return
}

// Initial is the state at time zero at x
func (s *Setup) Initial(x [3]float64, u []float64) {
	var (
		Y   = s.fuel()
		mid = 0.5 * (s.domainLo[0] + s.domainHi[0])
	)
	switch s.Init {
	case UNIFORM:
		s.Gas.Conserved(1.2, [3]float64{}, 1.e5, Y, u)
	case SOD:
		if x[0] < mid {
			s.Gas.Conserved(1, [3]float64{}, 1, Y, u)
		} else {
			s.Gas.Conserved(0.125, [3]float64{}, 0.1, Y, u)
		}
	case PULSE:
		w := 0.05 * (s.domainHi[0] - s.domainLo[0])
		rho := 1 + 0.2*math.Exp(-math.Pow((x[0]-mid)/w, 2))
		s.Gas.Conserved(rho, [3]float64{1}, 1, Y, u)
	case MMS:
		s.Gas.Conserved(s.MMS.Density(x, 0), [3]float64{}, 1, Y, u)
	}
}

// DecayingDensity is the manufactured solution rho = 1 + A e^{-t} sin(kx) of
// a gas at rest under uniform pressure, all of it in the first species.
type DecayingDensity struct {
	Amplitude, Wavenumber float64
	Layout                types.StateLayout
}

var _ sources.ManufacturedSolution = (*DecayingDensity)(nil)

func (dd *DecayingDensity) Density(x [3]float64, t float64) float64 {
	return 1 + dd.Amplitude*math.Exp(-t)*math.Sin(dd.Wavenumber*x[0])
}

func (dd *DecayingDensity) Source(x [3]float64, t float64, dst []float64) {
	drho := -dd.Amplitude * math.Exp(-t) * math.Sin(dd.Wavenumber*x[0])
	dst[types.Density] = drho
	if dd.Layout.NumSpec > 0 {
		dst[dd.Layout.FirstSpec()] = drho
	}
}

// Modules constructs the enabled source modules wired to this setup
func (s *Setup) Modules(ip *InputParameters.InputParameters) (mods []sources.Module) {
	for _, st := range ip.Sources() {
		m := sources.New(st)
		switch mod := m.(type) {
		case *sources.Forcing:
			mod.Acceleration = ip.Forcing.Acceleration
			mod.LinearCoefficient = ip.Forcing.LinearCoefficient
			mod.ReferenceVelocity = ip.Forcing.ReferenceVelocity
		case *sources.Diffusion:
			mod.Op = s.Transport
		case *sources.Manufactured:
			mod.MMS = s.MMS
		}
		mods = append(mods, m)
	}
	return
}

// LevelBoxes returns the patches of every level, level 0 covering the domain
func LevelBoxes(ip *InputParameters.InputParameters) (bas []grid.BoxArray) {
	var (
		dim    = ip.Dim
		domain = grid.DomainBox(dim, grid.IntVect(ip.NCells))
	)
	bas = append(bas, grid.ChopBox(domain, ip.MaxGridSize, dim))
	for lev := 1; lev <= ip.MaxLevel(); lev++ {
		var ba grid.BoxArray
		for _, rr := range ip.Refinement {
			if rr.Level != lev {
				continue
			}
			b := grid.DomainBox(dim, grid.IntVect{1, 1, 1})
			for d := 0; d < dim; d++ {
				b.Lo[d], b.Hi[d] = rr.Lo[d], rr.Hi[d]+1
			}
			ba = append(ba, grid.ChopBox(b, ip.MaxGridSize, dim)...)
		}
		bas = append(bas, ba)
	}
	return
}

// NewHierarchy builds and initializes every level of the run
func (s *Setup) NewHierarchy(ip *InputParameters.InputParameters, logger *slog.Logger) (h *advance.Hierarchy, err error) {
	var (
		bas    = LevelBoxes(ip)
		layout = ip.StateLayout()
		geom   = grid.NewGeometry(ip.Dim, grid.IntVect(ip.NCells), ip.ProbLo, ip.ProbHi, ip.BCFlags())
		run    = advance.NewRunContext()
		levels []*advance.Level
		cfg    = advance.Config{
			Scheme:             ip.SchemeType(),
			MOLStages:          ip.MOLStages,
			SDCIterations:      ip.SDCIterations,
			CFL:                ip.CFL,
			InitShrink:         ip.InitShrink,
			ChangeMax:          ip.ChangeMax,
			TagDensityGradient: ip.TagDensityGradient,
			ParallelDegree:     ip.ParallelDegree,
		}
	)
	if cfg.Scheme == types.SDC {
		if cfg.Nodes, err = quadrature.NewNodes(ip.NodeType(), ip.SDCNodes); err != nil {
			return
		}
	}
	for lev, ba := range bas {
		if lev > 0 {
			geom = geom.Refine(ip.RefRatio)
		}
		var (
			mask   *eb.Mask
			coarse *advance.Level
			lv     *advance.Level
		)
		if s.Body != nil {
			mask = eb.Build(geom, ba, s.Transport.GhostWidth(), s.Body, 4)
			mask.SetBodyState(s.BodyState)
		}
		if lev > 0 {
			coarse = levels[lev-1]
		}
		lv, err = advance.NewLevel(advance.LevelOptions{
			Lev:       lev,
			Geom:      geom,
			BA:        ba,
			Layout:    layout,
			Mask:      mask,
			Coarser:   coarse,
			Ratio:     ip.RefRatio,
			Inflow:    s.Inflow,
			Sources:   s.Modules(ip),
			Transport: s.Transport,
			Reactions: s.Chemistry,
			Validator: &validation.Validator{
				Layout:           layout,
				DensityFloor:     ip.DensityFloor,
				SpeciesTolerance: ip.SpeciesTolerance,
				DualEnergyTol:    ip.DualEnergyTol,
				EOS:              s.Gas,
				ParallelDegree:   ip.ParallelDegree,
				Logger:           logger,
			},
			Config: cfg,
			Run:    run,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", lev, err)
		}
		if err = lv.Initialize(0, s.Initial); err != nil {
			return
		}
		levels = append(levels, lv)
	}
	// Covered coarse cells start as the average of the fine data
	for lev := len(levels) - 1; lev > 0; lev-- {
		fine, crse := levels[lev], levels[lev-1]
		grid.AverageDown(fine.Old, crse.Old, ip.RefRatio, fine.Mask.VolumeFraction)
		if err = crse.Mask.Apply(crse.Old); err != nil {
			return
		}
		crse.New.CopyFrom(crse.Old)
	}
	if h, err = advance.NewHierarchy(levels, ip.RefRatio, run, logger); err != nil {
		return
	}
	h.FixedDt = ip.FixedDt
	return
}
