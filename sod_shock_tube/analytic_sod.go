package sod_shock_tube

import (
	"errors"
	"fmt"
	"math"
)

var ErrVacuum = errors.New("riemann problem generates vacuum")

// Riemann is the exact solution of the ideal gas shock tube with the
// discontinuity at X0 at time zero.
type Riemann struct {
	Gamma          float64
	RhoL, UL, PL   float64
	RhoR, UR, PR   float64
	X0             float64
	PStar, UStar   float64
	cL, cR         float64
	g1, g3, g4, g5 float64
	g6, g7         float64
}

func NewRiemann(gamma, rhoL, uL, pL, rhoR, uR, pR, x0 float64) (r *Riemann, err error) {
	r = &Riemann{
		Gamma: gamma,
		RhoL:  rhoL, UL: uL, PL: pL,
		RhoR: rhoR, UR: uR, PR: pR,
		X0: x0,
		cL: math.Sqrt(gamma * pL / rhoL),
		cR: math.Sqrt(gamma * pR / rhoR),
		g1: (gamma - 1) / (2 * gamma),
		g3: 2 * gamma / (gamma - 1),
		g4: 2 / (gamma - 1),
		g5: 2 / (gamma + 1),
		g6: (gamma - 1) / (gamma + 1),
		g7: (gamma - 1) / 2,
	}
	if r.g4*(r.cL+r.cR) <= uR-uL {
		return nil, fmt.Errorf("%w: du = %g", ErrVacuum, uR-uL)
	}
	r.solveStar()
	return
}

// NewSOD is the classic tube on [0,1] with gamma 1.4
func NewSOD() *Riemann {
	r, _ := NewRiemann(1.4, 1, 0, 1, 0.125, 0, 0.1, 0.5)
	return r
}

// waveFunction is the velocity jump across the wave facing state K at
// star pressure p
func (r *Riemann) waveFunction(p, rhoK, pK, cK float64) float64 {
	if p > pK {
		var (
			A = r.g5 / rhoK
			B = r.g6 * pK
		)
		return (p - pK) * math.Sqrt(A/(p+B))
	}
	return r.g4 * cK * (math.Pow(p/pK, r.g1) - 1)
}

// solveStar bisects the monotone pressure function
func (r *Riemann) solveStar() {
	var (
		f = func(p float64) float64 {
			return r.waveFunction(p, r.RhoL, r.PL, r.cL) + r.waveFunction(p, r.RhoR, r.PR, r.cR) + r.UR - r.UL
		}
		lo, hi = 1.e-14, math.Max(r.PL, r.PR)
	)
	for f(hi) < 0 {
		hi *= 2
	}
	for i := 0; i < 200 && hi-lo > 1.e-15*hi; i++ {
		mid := 0.5 * (lo + hi)
		if f(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	r.PStar = 0.5 * (lo + hi)
	r.UStar = 0.5*(r.UL+r.UR) + 0.5*(r.waveFunction(r.PStar, r.RhoR, r.PR, r.cR)-r.waveFunction(r.PStar, r.RhoL, r.PL, r.cL))
}

// Sample returns density, velocity and pressure at x and time t > 0
func (r *Riemann) Sample(x, t float64) (rho, u, p float64) {
	s := (x - r.X0) / t
	if s <= r.UStar {
		return r.sampleLeft(s)
	}
	return r.sampleRight(s)
}

func (r *Riemann) sampleLeft(s float64) (rho, u, p float64) {
	ps := r.PStar / r.PL
	if r.PStar > r.PL {
		sl := r.UL - r.cL*math.Sqrt((r.Gamma+1)/(2*r.Gamma)*ps+r.g1)
		if s <= sl {
			return r.RhoL, r.UL, r.PL
		}
		return r.RhoL * (ps + r.g6) / (r.g6*ps + 1), r.UStar, r.PStar
	}
	if s <= r.UL-r.cL {
		return r.RhoL, r.UL, r.PL
	}
	cml := r.cL * math.Pow(ps, r.g1)
	if s > r.UStar-cml {
		return r.RhoL * math.Pow(ps, 1/r.Gamma), r.UStar, r.PStar
	}
	u = r.g5 * (r.cL + r.g7*r.UL + s)
	c := r.g5 * (r.cL + r.g7*(r.UL-s))
	rho = r.RhoL * math.Pow(c/r.cL, r.g4)
	p = r.PL * math.Pow(c/r.cL, r.g3)
	return
}

func (r *Riemann) sampleRight(s float64) (rho, u, p float64) {
	ps := r.PStar / r.PR
	if r.PStar > r.PR {
		sr := r.UR + r.cR*math.Sqrt((r.Gamma+1)/(2*r.Gamma)*ps+r.g1)
		if s >= sr {
			return r.RhoR, r.UR, r.PR
		}
		return r.RhoR * (ps + r.g6) / (r.g6*ps + 1), r.UStar, r.PStar
	}
	if s >= r.UR+r.cR {
		return r.RhoR, r.UR, r.PR
	}
	cmr := r.cR * math.Pow(ps, r.g1)
	if s <= r.UStar+cmr {
		return r.RhoR * math.Pow(ps, 1/r.Gamma), r.UStar, r.PStar
	}
	u = r.g5 * (-r.cR + r.g7*r.UR + s)
	c := r.g5 * (r.cR - r.g7*(r.UR-s))
	rho = r.RhoR * math.Pow(c/r.cR, r.g4)
	p = r.PR * math.Pow(c/r.cR, r.g3)
	return
}

// Waves returns, for a left rarefaction and right shock, the rarefaction
// head and tail, the contact and the shock positions at time t.
func (r *Riemann) Waves(t float64) (x1, x2, x3, x4 float64) {
	var (
		ps      = r.PStar / r.PR
		cml     = r.cL * math.Pow(r.PStar/r.PL, r.g1)
		vShock  = r.UR + r.cR*math.Sqrt((r.Gamma+1)/(2*r.Gamma)*ps+r.g1)
		headVel = r.UL - r.cL
	)
	x1 = r.X0 + headVel*t
	x2 = r.X0 + (r.UStar-cml)*t
	x3 = r.X0 + r.UStar*t
	x4 = r.X0 + vShock*t
	return
}

// SOD_calc samples the classic tube at time t at the domain ends, across the
// rarefaction fan and on both sides of each discontinuity, for plotting.
func SOD_calc(t float64) (X, Rho, P, U, E []float64, x1, x2, x3, x4 float64) {
	var (
		r       = NewSOD()
		tol     = 1.e-8
		nFan    = 10
		gamma   = r.Gamma
		xMin, x = 0., 1.
	)
	x1, x2, x3, x4 = r.Waves(t)
	X = append(X, xMin, x1-tol)
	for i := 0; i <= nFan; i++ {
		X = append(X, x1+(x2-x1)*float64(i)/float64(nFan))
	}
	X = append(X, x2+tol, x3-tol, x3+tol, x4-tol, x4+tol, x)
	Rho = make([]float64, len(X))
	P = make([]float64, len(X))
	U = make([]float64, len(X))
	E = make([]float64, len(X))
	for i, xx := range X {
		Rho[i], U[i], P[i] = r.Sample(xx, t)
		E[i] = P[i] / ((gamma - 1.) * Rho[i])
	}
	return
}
