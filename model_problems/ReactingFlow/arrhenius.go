package ReactingFlow

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/types"
)

var ErrNewtonDiverged = errors.New("newton iteration did not converge")

// Arrhenius is the irreversible reaction A -> B between the first two
// species with rate PreExponential * rho_A * exp(-ActivationTemp / T). The
// heat of formation of A is released as sensible energy, the total energy is
// unchanged by the reaction.
type Arrhenius struct {
	Gas            *Gas
	PreExponential float64
	ActivationTemp float64
	SubSteps       int
	MaxNewtonIter  int
	Tol            float64 // Relative Newton step tolerance
}

var _ advance.ReactionStepper = (*Arrhenius)(nil)

func (ar *Arrhenius) active() bool {
	return ar.Gas.Layout.NumSpec >= 2 && ar.PreExponential != 0
}

func (ar *Arrhenius) rate(rhoA, T float64) float64 {
	if rhoA <= 0 || T <= 0 {
		return 0
	}
	return ar.PreExponential * rhoA * math.Exp(-ar.ActivationTemp/T)
}

func (ar *Arrhenius) Rates(u, dst []float64) error {
	clear(dst)
	if !ar.active() {
		return nil
	}
	var (
		a = ar.Gas.Layout.FirstSpec()
		w = ar.rate(u[a], ar.Gas.Temperature(u))
	)
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("non-finite reaction rate at T = %g", ar.Gas.Temperature(u))
	}
	dst[a], dst[a+1] = -w, w
	return nil
}

// Advance integrates the cell over dt with backward Euler sub-steps. Every
// component but the reacting pair moves linearly with the tendency. Within a
// sub-step the partial density of A is found by a scalar Newton iteration,
// B follows from the conserved sum of the pair.
func (ar *Arrhenius) Advance(u, tendency []float64, dt float64) error {
	if !ar.active() {
		for n := range u {
			u[n] += dt * tendency[n]
		}
		return nil
	}
	var (
		g       = ar.Gas
		a, b    = g.Layout.FirstSpec(), g.Layout.FirstSpec() + 1
		nSub    = max(ar.SubSteps, 1)
		h       = dt / float64(nSub)
		tol     = ar.Tol
		q       = g.Q[0] - g.Q[1]
		chemAux float64 // Heat of formation of species beyond the pair
	)
	if tol == 0 {
		tol = 1.e-12
	}
	for k := 2; k < g.Layout.NumSpec; k++ {
		chemAux += u[a+k] * g.Q[k]
	}
	for s := 0; s < nSub; s++ {
		var (
			rho  = u[types.Density] + h*tendency[types.Density]
			rhoe = u[types.Eint] + h*tendency[types.Eint]
			sum  = u[a] + u[b] + h*(tendency[a]+tendency[b])
			y0   = u[a]
			y    = y0
			done bool
		)
		for k := 2; k < g.Layout.NumSpec; k++ {
			chemAux += h * tendency[a+k] * g.Q[k]
		}
		// T(y) with the pair holding y and sum - y
		temp := func(y float64) float64 {
			return (rhoe - chemAux - g.Q[1]*sum - q*y) / (rho * g.Cv)
		}
		dTdy := -q / (rho * g.Cv)
		for it := 0; it < max(ar.MaxNewtonIter, 1); it++ {
			var (
				T     = temp(y)
				w     = ar.rate(y, T)
				res   = y - y0 - h*(tendency[a]-w)
				dwdy  float64
				scale = math.Max(rho, math.Abs(y))
			)
			if T > 0 && y > 0 {
				ex := ar.PreExponential * math.Exp(-ar.ActivationTemp/T)
				dwdy = ex * (1 + y*ar.ActivationTemp/(T*T)*dTdy)
			}
			dy := res / (1 + h*dwdy)
			if math.IsNaN(dy) || math.IsInf(dy, 0) {
				break
			}
			y -= dy
			if y < 0 && tendency[a] >= 0 {
				y = 0
			}
			if math.Abs(dy) <= tol*scale {
				done = true
				break
			}
		}
		if !done {
			return fmt.Errorf("%w: sub-step %d of %d, rho_A = %g, T = %g",
				ErrNewtonDiverged, s, nSub, y, temp(y))
		}
		for n := range u {
			if n != a && n != b {
				u[n] += h * tendency[n]
			}
		}
		u[a], u[b] = y, sum-y
		u[types.Temp] = temp(y)
	}
	return nil
}
