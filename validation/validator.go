// Package validation repairs a freshly advanced state so that it is
// admissible: positive density, consistent internal and total energy, and
// species mass fractions that sum to one.
package validation

import (
	"context"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/reactamr/eb"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
	"github.com/notargets/reactamr/utils"
)

// Relative species sum error below which a cell is left untouched
const normTiny = 1.e-14

// EOS recomputes the temperature of one cell from its conserved state
type EOS interface {
	Temperature(u []float64) float64
}

type Validator struct {
	Layout           types.StateLayout
	DensityFloor     float64
	SpeciesTolerance float64
	DualEnergyTol    float64
	EOS              EOS // Optional
	ParallelDegree   int
	Logger           *slog.Logger
}

// Report totals the corrections of one validation pass
type Report struct {
	MassAdded         float64
	DensityFloored    int
	EnergyReset       int // rho e replaced by E - KE
	EnergyRepaired    int // E replaced by rho e + KE
	SpeciesNormalized int // Cells whose species sum was outside tolerance
	MaxSpeciesError   float64
	MinDensity        float64
}

func (r *Report) merge(o Report) {
	r.MassAdded += o.MassAdded
	r.DensityFloored += o.DensityFloored
	r.EnergyReset += o.EnergyReset
	r.EnergyRepaired += o.EnergyRepaired
	r.SpeciesNormalized += o.SpeciesNormalized
	r.MaxSpeciesError = math.Max(r.MaxSpeciesError, o.MaxSpeciesError)
	r.MinDensity = math.Min(r.MinDensity, o.MinDensity)
}

func (r Report) Corrections() int {
	return r.DensityFloored + r.EnergyReset + r.EnergyRepaired + r.SpeciesNormalized
}

// Validate applies the density floor, the energy consistency rule, species
// normalization and the temperature update to the valid fluid cells of state,
// in that order. old supplies specific values for cells whose density went
// non-positive.
func (v *Validator) Validate(ctx context.Context, old, state *grid.MultiFab, geom grid.Geometry, mask *eb.Mask) (rep Report, err error) {
	var (
		np      = state.NumPatches()
		reports = make([]Report, np)
		vol     = geom.CellVolume()
		pm      = utils.NewPartitionMap(utils.ParallelDegreeFor(v.ParallelDegree, np), np)
	)
	err = pm.ForEachItem(ctx, func(_ context.Context, p int) error {
		var (
			f    = state.Fabs[p]
			of   = old.Fabs[p]
			u    = make([]float64, state.NComp)
			uOld = make([]float64, state.NComp)
			r    = Report{MinDensity: math.Inf(1)}
		)
		f.Box.ForEach(func(iv grid.IntVect) {
			vfrac := 1.
			if mask != nil {
				if vfrac = mask.VolumeFraction(p, iv); vfrac == 0 {
					return
				}
			}
			f.GetCell(iv, u)
			r.MinDensity = math.Min(r.MinDensity, u[types.Density])
			if u[types.Density] < v.DensityFloor {
				of.GetCell(iv, uOld)
				r.MassAdded += v.EnforceMinDensityCell(uOld, u) * vol * vfrac
				r.DensityFloored++
			}
			switch v.EnforceInternalEnergyCell(u) {
			case energyReset:
				r.EnergyReset++
			case energyRepaired:
				r.EnergyRepaired++
			}
			if dev := v.NormalizeSpeciesCell(u); dev > 0 {
				r.MaxSpeciesError = math.Max(r.MaxSpeciesError, dev)
				if dev > v.SpeciesTolerance {
					r.SpeciesNormalized++
				}
			}
			if v.EOS != nil {
				u[types.Temp] = v.EOS.Temperature(u)
			}
			f.SetCell(iv, u)
		})
		reports[p] = r
		return nil
	})
	if err != nil {
		return
	}
	rep.MinDensity = math.Inf(1)
	for _, r := range reports {
		rep.merge(r)
	}
	v.log(rep)
	return
}

func (v *Validator) log(rep Report) {
	if v.Logger == nil {
		return
	}
	if rep.DensityFloored > 0 {
		v.Logger.Warn("density floor applied",
			slog.Int("cells", rep.DensityFloored),
			slog.Float64("mass_added", rep.MassAdded),
			slog.Float64("min_density", rep.MinDensity))
	}
	if rep.EnergyReset+rep.EnergyRepaired > 0 {
		v.Logger.Warn("internal energy made consistent",
			slog.Int("reset", rep.EnergyReset),
			slog.Int("repaired", rep.EnergyRepaired))
	}
	if rep.SpeciesNormalized > 0 {
		v.Logger.Warn("species renormalized beyond tolerance",
			slog.Int("cells", rep.SpeciesNormalized),
			slog.Float64("max_sum_error", rep.MaxSpeciesError))
	}
}

// EnforceMinDensityCell raises the density of u to the floor and returns the
// mass added per unit volume. Positive densities scale every conserved
// component, non-positive ones take their specific values from uOld.
func (v *Validator) EnforceMinDensityCell(uOld, u []float64) (added float64) {
	var (
		rho   = u[types.Density]
		floor = v.DensityFloor
	)
	if rho >= floor {
		return 0
	}
	added = floor - rho
	if rho > 0 {
		scale := floor / rho
		for n := range u {
			if v.Layout.IsConservedDensity(n) {
				u[n] *= scale
			}
		}
		return
	}
	rhoOld := uOld[types.Density]
	if rhoOld <= 0 {
		u[types.Density] = floor
		for d := 0; d < 3; d++ {
			u[types.Mom(d)] = 0
		}
		return
	}
	for n := range u {
		if v.Layout.IsConservedDensity(n) {
			u[n] = floor * uOld[n] / rhoOld
		} else {
			u[n] = uOld[n]
		}
	}
	return
}

type energyAction uint8

const (
	energyOK energyAction = iota
	energyReset
	energyRepaired
)

func kineticEnergy(u []float64) (ke float64) {
	rho := u[types.Density]
	if rho <= 0 {
		return 0
	}
	for d := 0; d < 3; d++ {
		m := u[types.Mom(d)]
		ke += m * m
	}
	return 0.5 * ke / rho
}

// EnforceInternalEnergyCell compares the evolved rho e with E - KE. Beyond
// the tolerance rho e takes the derived value. When E - KE is not positive
// the evolved rho e is kept and E is rebuilt from it.
func (v *Validator) EnforceInternalEnergyCell(u []float64) energyAction {
	var (
		ke   = kineticEnergy(u)
		eDer = u[types.Eden] - ke
	)
	if eDer > 0 {
		if math.Abs(eDer-u[types.Eint]) > v.DualEnergyTol*eDer {
			u[types.Eint] = eDer
			return energyReset
		}
		return energyOK
	}
	if u[types.Eint] > 0 {
		u[types.Eden] = u[types.Eint] + ke
		return energyRepaired
	}
	return energyOK
}

// NormalizeSpeciesCell scales every partial density by the one factor that
// makes them sum to the density, so the ratios between species are kept.
// A cell whose species sum is not positive has no ratios to keep and is
// reset to an equal split. The returned deviation is the relative species
// sum error before the repair.
func (v *Validator) NormalizeSpeciesCell(u []float64) (deviation float64) {
	var (
		ns  = v.Layout.NumSpec
		fs  = v.Layout.FirstSpec()
		rho = u[types.Density]
		sum float64
	)
	if ns == 0 || rho <= 0 {
		return
	}
	for k := fs; k < fs+ns; k++ {
		sum += u[k]
	}
	deviation = math.Abs(sum-rho) / rho
	if deviation <= normTiny {
		return 0
	}
	if sum <= 0 {
		for k := fs; k < fs+ns; k++ {
			u[k] = rho / float64(ns)
		}
		return
	}
	floats.Scale(rho/sum, u[fs:fs+ns])
	return
}
