package InputParameters

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/reactamr/quadrature"
	"github.com/notargets/reactamr/types"
)

var sdcInput = []byte(`
Title: "two level SDC"
InitType: sod
Dim: 1
NCells: [64, 1, 1]
Scheme: SDC
SDCIterations: 4
SDCNodes: 3
ActiveSources: [manufactured, forcing]
BCs:
  x: [wall, outflow]
Refinement:
  - Level: 1
    Lo: [32, 0, 0]
    Hi: [63, 0, 0]
Chemistry:
  PreExponential: 500
`)

func TestParse(t *testing.T) {
	ip := NewInputParameters()
	require.NoError(t, ip.Parse(sdcInput))
	require.NoError(t, ip.Validate())
	assert.Equal(t, types.SDC, ip.SchemeType())
	assert.Equal(t, quadrature.GaussLobatto, ip.NodeType())
	assert.Equal(t, []types.SourceType{types.ForcingSrc, types.ManufacturedSrc}, ip.Sources())
	assert.Equal(t, 1, ip.MaxLevel())
	assert.Equal(t, 500., ip.Chemistry.PreExponential)
	// Defaults survive a partial nested block
	assert.Equal(t, 4, ip.Chemistry.SubSteps)
	bc := ip.BCFlags()
	assert.Equal(t, types.BC_Wall, bc[0][0])
	assert.Equal(t, types.BC_Out, bc[0][1])
	assert.Equal(t, types.BC_Periodic, bc[1][0])
	assert.Equal(t, 9, ip.StateLayout().NumState())

	var buf bytes.Buffer
	ip.Fprint(&buf)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "print_sdc", buf.Bytes())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(ip *InputParameters){
		"zero sdc iterations":  func(ip *InputParameters) { ip.SDCIterations = 0 },
		"zero density floor":   func(ip *InputParameters) { ip.DensityFloor = 0 },
		"negative species tol": func(ip *InputParameters) { ip.SpeciesTolerance = -1 },
		"unknown source":       func(ip *InputParameters) { ip.ActiveSources = []string{"gravity"} },
		"duplicate source":     func(ip *InputParameters) { ip.ActiveSources = []string{"forcing", "forcing"} },
		"unknown scheme":       func(ip *InputParameters) { ip.Scheme = "RK4" },
		"unknown quadrature":   func(ip *InputParameters) { ip.SDCQuadrature = "radau" },
		"three mol stages":     func(ip *InputParameters) { ip.MOLStages = 3 },
		"one-sided periodic": func(ip *InputParameters) {
			ip.BCs = map[string][2]string{"x": {"periodic", "wall"}}
		},
		"unknown bc": func(ip *InputParameters) {
			ip.BCs = map[string][2]string{"x": {"sticky", "wall"}}
		},
		"misaligned refinement": func(ip *InputParameters) {
			ip.Refinement = []RefinedRegion{{Level: 1, Lo: [3]int{3}, Hi: [3]int{10}}}
		},
		"orphan level": func(ip *InputParameters) {
			ip.Refinement = []RefinedRegion{{Level: 2, Lo: [3]int{0}, Hi: [3]int{3}}}
		},
	}
	for name, mutate := range cases {
		ip := NewInputParameters()
		require.NoErrorf(t, ip.Validate(), "defaults")
		mutate(ip)
		err := ip.Validate()
		assert.ErrorIsf(t, err, ErrInvalidConfig, "%s", name)
	}
}
