// Package ReactingFlow is a calorically perfect, multi-species gas with a
// single irreversible reaction, advanced with a Rusanov transport operator.
package ReactingFlow

import (
	"math"

	"github.com/notargets/reactamr/types"
)

// Gas is an ideal gas with equal heat capacities for every species. Q holds
// the heat of formation per unit mass of each species, which is part of the
// total and internal energies.
type Gas struct {
	Gamma, Cv float64
	Layout    types.StateLayout
	Q         []float64
}

func NewGas(gamma, cv, heatRelease float64, layout types.StateLayout) (g *Gas) {
	g = &Gas{
		Gamma:  gamma,
		Cv:     cv,
		Layout: layout,
		Q:      make([]float64, layout.NumSpec),
	}
	if layout.NumSpec > 0 {
		g.Q[0] = heatRelease
	}
	return
}

type Primitive struct {
	Rho  float64
	Vel  [3]float64
	P, T float64
	C    float64 // Sound speed
}

func kineticEnergy(u []float64) (ke float64) {
	for d := 0; d < 3; d++ {
		ke += u[types.Mom(d)] * u[types.Mom(d)]
	}
	return 0.5 * ke / u[types.Density]
}

// chemicalEnergy is sum_k rho_k q_k
func (g *Gas) chemicalEnergy(u []float64) (e float64) {
	fs := g.Layout.FirstSpec()
	for k, q := range g.Q {
		e += u[fs+k] * q
	}
	return
}

// sensible returns the thermal part of the internal energy density, taken
// from E - KE and from the evolved rho e when E - KE is not positive.
func (g *Gas) sensible(u []float64) float64 {
	rhoe := u[types.Eden] - kineticEnergy(u)
	if rhoe <= 0 {
		rhoe = u[types.Eint]
	}
	return rhoe - g.chemicalEnergy(u)
}

func (g *Gas) Primitive(u []float64) (pr Primitive) {
	pr.Rho = u[types.Density]
	for d := 0; d < 3; d++ {
		pr.Vel[d] = u[types.Mom(d)] / pr.Rho
	}
	es := g.sensible(u)
	pr.P = (g.Gamma - 1) * es
	pr.T = es / (pr.Rho * g.Cv)
	pr.C = math.Sqrt(g.Gamma * math.Max(pr.P, 0) / pr.Rho)
	return
}

// Temperature uses the evolved internal energy, which the validator has
// made consistent with the total energy.
func (g *Gas) Temperature(u []float64) float64 {
	return (u[types.Eint] - g.chemicalEnergy(u)) / (u[types.Density] * g.Cv)
}

// Conserved fills u from density, velocity, pressure and mass fractions
func (g *Gas) Conserved(rho float64, vel [3]float64, p float64, Y []float64, u []float64) {
	clear(u)
	u[types.Density] = rho
	var ke float64
	for d := 0; d < 3; d++ {
		u[types.Mom(d)] = rho * vel[d]
		ke += 0.5 * rho * vel[d] * vel[d]
	}
	fs := g.Layout.FirstSpec()
	for k := 0; k < g.Layout.NumSpec && k < len(Y); k++ {
		u[fs+k] = rho * Y[k]
	}
	es := p / (g.Gamma - 1)
	u[types.Eint] = es + g.chemicalEnergy(u)
	u[types.Eden] = u[types.Eint] + ke
	u[types.Temp] = es / (rho * g.Cv)
}
