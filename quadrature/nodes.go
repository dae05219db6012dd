// Package quadrature provides the temporal node sets and the node-to-node
// integration matrix used by the spectral deferred correction advance.
package quadrature

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var ErrTooFewNodes = errors.New("quadrature needs at least two nodes")

type NodeType uint8

const (
	GaussLobatto NodeType = iota
	Uniform
)

func (nt NodeType) String() string {
	if nt == Uniform {
		return "uniform"
	}
	return "lobatto"
}

func ParseNodeType(name string) (nt NodeType, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lobatto", "gauss-lobatto", "":
		nt = GaussLobatto
	case "uniform":
		nt = Uniform
	default:
		err = fmt.Errorf("unknown node type %q", name)
	}
	return
}

// Nodes holds n points tau_0 = 0 < ... < tau_{n-1} = 1 on the unit step and
// the integration matrix S, where S[m][j] is the integral of the j-th
// Lagrange basis polynomial from tau_m to tau_{m+1}.
type Nodes struct {
	Type NodeType
	Tau  []float64
	W    []float64 // Full interval weights, W[j] = sum_m S[m][j]
	S    *mat.Dense
}

func NewNodes(nt NodeType, n int) (nd *Nodes, err error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: requested %d", ErrTooFewNodes, n)
	}
	var x []float64
	switch nt {
	case GaussLobatto:
		x = JacobiGL(0, 0, n-1)
	case Uniform:
		x = make([]float64, n)
		for i := range x {
			x[i] = -1 + 2*float64(i)/float64(n-1)
		}
	default:
		return nil, fmt.Errorf("unknown node type %d", nt)
	}
	nd = &Nodes{
		Type: nt,
		Tau:  make([]float64, n),
		W:    make([]float64, n),
	}
	for i, xi := range x {
		nd.Tau[i] = 0.5 * (xi + 1)
	}
	// Clean up the endpoints produced by the eigen solve
	nd.Tau[0], nd.Tau[n-1] = 0, 1
	if nd.S, err = integrationMatrix(x); err != nil {
		return nil, err
	}
	for m := 0; m < n-1; m++ {
		for j := 0; j < n; j++ {
			nd.W[j] += nd.S.At(m, j)
		}
	}
	return
}

// integrationMatrix builds S on the unit interval from nodes x on [-1,1]. The
// Lagrange basis is expanded in monomials of x, whose coefficients come from
// inverting the Vandermonde matrix.
func integrationMatrix(x []float64) (S *mat.Dense, err error) {
	var (
		n = len(x)
		V = mat.NewDense(n, n, nil)
		C mat.Dense
	)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			V.Set(i, k, math.Pow(x[i], float64(k)))
		}
	}
	// Row j of V*C = e_j means column j of C holds the coefficients of l_j
	if err = C.Inverse(V); err != nil {
		return nil, fmt.Errorf("vandermonde inverse: %w", err)
	}
	S = mat.NewDense(n-1, n, nil)
	for m := 0; m < n-1; m++ {
		a, b := x[m], x[m+1]
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				kp1 := float64(k + 1)
				sum += C.At(k, j) * (math.Pow(b, kp1) - math.Pow(a, kp1)) / kp1
			}
			// dtau = dx/2
			S.Set(m, j, 0.5*sum)
		}
	}
	return
}

func (nd *Nodes) NumNodes() int     { return len(nd.Tau) }
func (nd *Nodes) NumIntervals() int { return len(nd.Tau) - 1 }

// SubInterval returns the width of sub-interval m on the unit step
func (nd *Nodes) SubInterval(m int) float64 { return nd.Tau[m+1] - nd.Tau[m] }

// Order is the order of the collocation solution on these nodes
func (nd *Nodes) Order() int {
	n := nd.NumNodes()
	if nd.Type == GaussLobatto {
		return 2*n - 2
	}
	if n%2 == 1 {
		return n + 1
	}
	return n
}

// Integrate returns the integral over sub-interval m, scaled by dt, of the
// polynomial interpolating the node values f.
func (nd *Nodes) Integrate(m int, dt float64, f []float64) (sum float64) {
	for j, fj := range f {
		sum += nd.S.At(m, j) * fj
	}
	return dt * sum
}
