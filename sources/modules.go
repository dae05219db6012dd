package sources

import (
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
)

// ExternalFunc is a problem supplied source evaluated at one cell
type ExternalFunc func(x [3]float64, t float64, state, dst []float64)

// External wraps a problem callback, a nil callback gives a zero source
type External struct {
	Func ExternalFunc
}

func (ex *External) Kind() types.SourceType { return types.ExternalSrc }

func (ex *External) BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error {
	if ex.Func == nil {
		return nil
	}
	var (
		sf    = bc.State.Fabs[p]
		state = make([]float64, sf.NComp)
		out   = make([]float64, dst.NComp)
	)
	dst.Box.ForEach(func(iv grid.IntVect) {
		sf.GetCell(iv, state)
		for n := range out {
			out[n] = 0
		}
		ex.Func(bc.Geom.CellCenter(iv), bc.Time, state, out)
		dst.SetCell(iv, out)
	})
	return nil
}

// Forcing applies a constant body acceleration plus an optional linear
// forcing toward a reference velocity. The energy source is the work done by
// the total force at the current velocity.
type Forcing struct {
	Acceleration      [3]float64
	LinearCoefficient float64
	ReferenceVelocity [3]float64
}

func (fo *Forcing) Kind() types.SourceType { return types.ForcingSrc }

func (fo *Forcing) BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error {
	var (
		sf = bc.State.Fabs[p]
	)
	dst.Box.ForEach(func(iv grid.IntVect) {
		rho := sf.Get(iv, types.Density)
		if rho <= 0 {
			return
		}
		var work float64
		for d := 0; d < 3; d++ {
			var (
				mom   = sf.Get(iv, types.Mom(d))
				force = rho*fo.Acceleration[d] + fo.LinearCoefficient*(mom-rho*fo.ReferenceVelocity[d])
			)
			dst.Set(iv, types.Mom(d), force)
			work += force * mom / rho
		}
		dst.Set(iv, types.Eden, work)
	})
	return nil
}

// SprayCoupler deposits the particle source of the spray subsystem
type SprayCoupler interface {
	Deposit(bc *BuildContext, p int, dst *grid.Fab) error
}

// Spray forwards to the spray subsystem, a nil coupler gives a zero source
type Spray struct {
	Coupler SprayCoupler
}

func (sp *Spray) Kind() types.SourceType { return types.SpraySrc }

func (sp *Spray) BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error {
	if sp.Coupler == nil {
		return nil
	}
	return sp.Coupler.Deposit(bc, p, dst)
}

// Diffuser computes the divergence of the diffusive fluxes
type Diffuser interface {
	Diffuse(bc *BuildContext, p int, dst *grid.Fab) error
}

type Diffusion struct {
	Op Diffuser
}

func (df *Diffusion) Kind() types.SourceType { return types.DiffusionSrc }

func (df *Diffusion) BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error {
	if df.Op == nil {
		return nil
	}
	return df.Op.Diffuse(bc, p, dst)
}

// ManufacturedSolution supplies the forcing that makes a chosen analytic
// field an exact solution.
type ManufacturedSolution interface {
	Source(x [3]float64, t float64, dst []float64)
}

type Manufactured struct {
	MMS ManufacturedSolution
}

func (mm *Manufactured) Kind() types.SourceType { return types.ManufacturedSrc }

func (mm *Manufactured) BuildPatch(bc *BuildContext, p int, dst *grid.Fab) error {
	if mm.MMS == nil {
		return nil
	}
	out := make([]float64, dst.NComp)
	dst.Box.ForEach(func(iv grid.IntVect) {
		for n := range out {
			out[n] = 0
		}
		mm.MMS.Source(bc.Geom.CellCenter(iv), bc.Time, out)
		dst.SetCell(iv, out)
	})
	return nil
}

// New constructs the module for kind with no collaborators attached
func New(kind types.SourceType) Module {
	switch kind {
	case types.ExternalSrc:
		return &External{}
	case types.ForcingSrc:
		return &Forcing{}
	case types.SpraySrc:
		return &Spray{}
	case types.DiffusionSrc:
		return &Diffusion{}
	case types.ManufacturedSrc:
		return &Manufactured{}
	}
	return nil
}
