package types

import "fmt"

// Fixed component indices of the conserved state
const (
	Density = iota
	Xmom
	Ymom
	Zmom
	Eden
	Eint
	Temp
	NumFixed
)

// StateLayout locates the variable-length groups of the conserved state:
// advected scalars, species partial densities and auxiliary scalars.
type StateLayout struct {
	NumAdv, NumSpec, NumAux int
}

func NewStateLayout(nAdv, nSpec, nAux int) (sl StateLayout) {
	if nAdv < 0 || nSpec < 0 || nAux < 0 {
		panic(fmt.Errorf("negative component count: adv %d, spec %d, aux %d", nAdv, nSpec, nAux))
	}
	return StateLayout{NumAdv: nAdv, NumSpec: nSpec, NumAux: nAux}
}

func (sl StateLayout) FirstAdv() int  { return NumFixed }
func (sl StateLayout) FirstSpec() int { return NumFixed + sl.NumAdv }
func (sl StateLayout) FirstAux() int  { return NumFixed + sl.NumAdv + sl.NumSpec }
func (sl StateLayout) NumState() int  { return NumFixed + sl.NumAdv + sl.NumSpec + sl.NumAux }

// Mom returns the momentum component for direction dir
func Mom(dir int) int { return Xmom + dir }

// IsConservedDensity reports whether component n scales with density: every
// component except the temperature.
func (sl StateLayout) IsConservedDensity(n int) bool {
	return n != Temp
}

func (sl StateLayout) Name(n int) string {
	switch {
	case n == Density:
		return "rho"
	case n == Xmom:
		return "xmom"
	case n == Ymom:
		return "ymom"
	case n == Zmom:
		return "zmom"
	case n == Eden:
		return "rho_E"
	case n == Eint:
		return "rho_e"
	case n == Temp:
		return "Temp"
	case n < sl.FirstSpec():
		return fmt.Sprintf("adv_%d", n-sl.FirstAdv())
	case n < sl.FirstAux():
		return fmt.Sprintf("rho_Y%d", n-sl.FirstSpec())
	case n < sl.NumState():
		return fmt.Sprintf("aux_%d", n-sl.FirstAux())
	}
	return fmt.Sprintf("comp_%d", n)
}
