package InputParameters

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"

	"github.com/notargets/reactamr/quadrature"
	"github.com/notargets/reactamr/types"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("sourcename", func(fl validator.FieldLevel) bool {
		_, err := types.ParseSourceType(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("bcname", func(fl validator.FieldLevel) bool {
		_, ok := types.BCNameMap[strings.ToLower(fl.Field().String())]
		return ok
	})
}

type RefinedRegion struct {
	Level int    `json:"Level" validate:"min=1"`
	Lo    [3]int `json:"Lo"`
	Hi    [3]int `json:"Hi"` // Inclusive, in the index space of Level
}

type ChemistryParameters struct {
	PreExponential float64 `json:"PreExponential" validate:"gte=0"`
	ActivationTemp float64 `json:"ActivationTemp" validate:"gte=0"`
	HeatRelease    float64 `json:"HeatRelease"`
	SubSteps       int     `json:"SubSteps" validate:"min=1"`
	MaxNewtonIter  int     `json:"MaxNewtonIter" validate:"min=1"`
}

type DiffusionParameters struct {
	Conductivity       float64 `json:"Conductivity" validate:"gte=0"`
	SpeciesDiffusivity float64 `json:"SpeciesDiffusivity" validate:"gte=0"`
}

type ForcingParameters struct {
	Acceleration      [3]float64 `json:"Acceleration"`
	LinearCoefficient float64    `json:"LinearCoefficient"`
	ReferenceVelocity [3]float64 `json:"ReferenceVelocity"`
}

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title              string               `json:"Title"`
	InitType           string               `json:"InitType"`
	Dim                int                  `json:"Dim" validate:"min=1,max=3"`
	NCells             [3]int               `json:"NCells"`
	ProbLo             [3]float64           `json:"ProbLo"`
	ProbHi             [3]float64           `json:"ProbHi"`
	MaxGridSize        int                  `json:"MaxGridSize" validate:"gte=0"`
	BCs                map[string][2]string `json:"BCs" validate:"dive,dive,bcname"` // Keyed by x, y, z
	RefRatio           int                  `json:"RefRatio" validate:"min=2"`
	Refinement         []RefinedRegion      `json:"Refinement" validate:"dive"`
	Scheme             string               `json:"Scheme"`
	SDCIterations      int                  `json:"SDCIterations" validate:"min=1"`
	SDCNodes           int                  `json:"SDCNodes" validate:"min=2"`
	SDCQuadrature      string               `json:"SDCQuadrature"`
	MOLStages          int                  `json:"MOLStages" validate:"min=1,max=2"`
	ActiveSources      []string             `json:"ActiveSources" validate:"dive,sourcename"`
	DensityFloor       float64              `json:"DensityFloor" validate:"gt=0"`
	SpeciesTolerance   float64              `json:"SpeciesTolerance" validate:"gte=0"`
	DualEnergyTol      float64              `json:"DualEnergyTol" validate:"gt=0"`
	CFL                float64              `json:"CFL" validate:"gt=0,lte=1"`
	InitShrink         float64              `json:"InitShrink" validate:"gt=0,lte=1"`
	ChangeMax          float64              `json:"ChangeMax" validate:"gte=1"`
	FixedDt            float64              `json:"FixedDt" validate:"gte=0"`
	FinalTime          float64              `json:"FinalTime" validate:"gt=0"`
	MaxSteps           int                  `json:"MaxSteps" validate:"gte=0"`
	Gamma              float64              `json:"Gamma" validate:"gt=1"`
	Cv                 float64              `json:"Cv" validate:"gt=0"`
	NumAdv             int                  `json:"NumAdv" validate:"gte=0"`
	NumSpec            int                  `json:"NumSpec" validate:"gte=0"`
	NumAux             int                  `json:"NumAux" validate:"gte=0"`
	Chemistry          ChemistryParameters  `json:"Chemistry"`
	Diffusion          DiffusionParameters  `json:"Diffusion"`
	Forcing            ForcingParameters    `json:"Forcing"`
	Body               string               `json:"Body"`
	BodyPosition       []float64            `json:"BodyPosition"`
	ParallelDegree     int                  `json:"ParallelDegree" validate:"gte=0"`
	TagDensityGradient float64              `json:"TagDensityGradient" validate:"gte=0"`
	CheckpointInterval int                  `json:"CheckpointInterval" validate:"gte=0"`
	CheckpointDir      string               `json:"CheckpointDir"`
	Verbose            bool                 `json:"Verbose"`
}

// NewInputParameters returns the defaults that an input file overrides
func NewInputParameters() (ip *InputParameters) {
	ip = &InputParameters{
		Title:            "reacting flow",
		InitType:         "uniform",
		Dim:              1,
		NCells:           [3]int{64, 1, 1},
		ProbHi:           [3]float64{1, 1, 1},
		MaxGridSize:      32,
		RefRatio:         2,
		Scheme:           "MOL",
		SDCIterations:    2,
		SDCNodes:         3,
		SDCQuadrature:    "lobatto",
		MOLStages:        1,
		DensityFloor:     1.e-12,
		SpeciesTolerance: 1.e-8,
		DualEnergyTol:    1.e-3,
		CFL:              0.3,
		InitShrink:       1,
		ChangeMax:        1.1,
		FinalTime:        1,
		Gamma:            1.4,
		Cv:               717.5,
		NumSpec:          2,
		Chemistry: ChemistryParameters{
			SubSteps:      4,
			MaxNewtonIter: 20,
		},
	}
	return
}

func (ip *InputParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Validate checks field bounds and the cross-field rules, before any step
func (ip *InputParameters) Validate() (err error) {
	if err = validate.Struct(ip); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err = types.ParseScheme(ip.Scheme); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err = quadrature.ParseNodeType(ip.SDCQuadrature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for d := 0; d < ip.Dim; d++ {
		if ip.NCells[d] < 1 {
			return fmt.Errorf("%w: NCells[%d] = %d", ErrInvalidConfig, d, ip.NCells[d])
		}
		if ip.ProbHi[d] <= ip.ProbLo[d] {
			return fmt.Errorf("%w: empty problem domain in direction %d", ErrInvalidConfig, d)
		}
	}
	for dir, pair := range ip.BCs {
		d := strings.Index("xyz", strings.ToLower(dir))
		if len(dir) != 1 || d < 0 || d >= ip.Dim {
			return fmt.Errorf("%w: boundary direction %q", ErrInvalidConfig, dir)
		}
		lo, hi := types.BCNameMap[strings.ToLower(pair[0])], types.BCNameMap[strings.ToLower(pair[1])]
		if (lo == types.BC_Periodic) != (hi == types.BC_Periodic) {
			return fmt.Errorf("%w: direction %s is periodic on one side only", ErrInvalidConfig, dir)
		}
	}
	seen := make(map[types.SourceType]bool)
	for _, name := range ip.ActiveSources {
		st, _ := types.ParseSourceType(name)
		if seen[st] {
			return fmt.Errorf("%w: source %q listed twice", ErrInvalidConfig, name)
		}
		seen[st] = true
	}
	for i, rr := range ip.Refinement {
		if rr.Level != 1 && !ip.hasLevel(rr.Level-1) {
			return fmt.Errorf("%w: refinement %d at level %d has no parent level", ErrInvalidConfig, i, rr.Level)
		}
		for d := 0; d < ip.Dim; d++ {
			n := ip.NCells[d]
			for l := 0; l < rr.Level; l++ {
				n *= ip.RefRatio
			}
			if rr.Lo[d] < 0 || rr.Hi[d] < rr.Lo[d] || rr.Hi[d] >= n {
				return fmt.Errorf("%w: refinement %d outside the level %d domain", ErrInvalidConfig, i, rr.Level)
			}
			if rr.Lo[d]%ip.RefRatio != 0 || (rr.Hi[d]+1)%ip.RefRatio != 0 {
				return fmt.Errorf("%w: refinement %d is not aligned to the refinement ratio", ErrInvalidConfig, i)
			}
		}
	}
	return nil
}

func (ip *InputParameters) hasLevel(lev int) bool {
	for _, rr := range ip.Refinement {
		if rr.Level == lev {
			return true
		}
	}
	return false
}

func (ip *InputParameters) MaxLevel() (ml int) {
	for _, rr := range ip.Refinement {
		ml = max(ml, rr.Level)
	}
	return
}

func (ip *InputParameters) SchemeType() types.Scheme {
	s, _ := types.ParseScheme(ip.Scheme)
	return s
}

func (ip *InputParameters) NodeType() quadrature.NodeType {
	nt, _ := quadrature.ParseNodeType(ip.SDCQuadrature)
	return nt
}

// Sources returns the enabled source modules in summation order
func (ip *InputParameters) Sources() (st []types.SourceType) {
	for _, name := range ip.ActiveSources {
		s, err := types.ParseSourceType(name)
		if err == nil {
			st = append(st, s)
		}
	}
	sort.Slice(st, func(i, j int) bool { return st[i] < st[j] })
	return
}

// BCFlags returns the boundary condition of every domain face, unspecified
// directions are periodic.
func (ip *InputParameters) BCFlags() (bc [3][2]types.BCFLAG) {
	for d := 0; d < 3; d++ {
		bc[d] = [2]types.BCFLAG{types.BC_Periodic, types.BC_Periodic}
	}
	for dir, pair := range ip.BCs {
		d := strings.Index("xyz", strings.ToLower(dir))
		if d < 0 {
			continue
		}
		bc[d][0] = types.BCNameMap[strings.ToLower(pair[0])]
		bc[d][1] = types.BCNameMap[strings.ToLower(pair[1])]
	}
	return
}

func (ip *InputParameters) StateLayout() types.StateLayout {
	return types.NewStateLayout(ip.NumAdv, ip.NumSpec, ip.NumAux)
}

func (ip *InputParameters) Print() {
	ip.Fprint(os.Stdout)
}

func (ip *InputParameters) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%s]\t\t\t= InitType\n", ip.InitType)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Dimension\n", ip.Dim)
	fmt.Fprintf(w, "[%d %d %d]\t\t\t= Level 0 Cells\n", ip.NCells[0], ip.NCells[1], ip.NCells[2])
	fmt.Fprintf(w, "[%d]\t\t\t\t= Max Grid Size\n", ip.MaxGridSize)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Finest Level\n", ip.MaxLevel())
	fmt.Fprintf(w, "[%s]\t\t\t\t= Scheme\n", ip.Scheme)
	if ip.SchemeType() == types.SDC {
		fmt.Fprintf(w, "[%d]\t\t\t\t= SDC Iterations\n", ip.SDCIterations)
		fmt.Fprintf(w, "[%d]\t\t\t\t= SDC Nodes (%s)\n", ip.SDCNodes, ip.SDCQuadrature)
	} else {
		fmt.Fprintf(w, "[%d]\t\t\t\t= MOL Stages\n", ip.MOLStages)
	}
	fmt.Fprintf(w, "%8.5f\t\t= CFL\n", ip.CFL)
	fmt.Fprintf(w, "%8.5f\t\t= FinalTime\n", ip.FinalTime)
	fmt.Fprintf(w, "%8.5f\t\t= Gamma\n", ip.Gamma)
	fmt.Fprintf(w, "%8.2e\t\t= Density Floor\n", ip.DensityFloor)
	fmt.Fprintf(w, "%8.2e\t\t= Species Tolerance\n", ip.SpeciesTolerance)
	fmt.Fprintf(w, "[%d %d %d]\t\t\t= Advected, Species, Auxiliary\n", ip.NumAdv, ip.NumSpec, ip.NumAux)
	srcNames := make([]string, 0, len(ip.ActiveSources))
	for _, st := range ip.Sources() {
		srcNames = append(srcNames, st.String())
	}
	fmt.Fprintf(w, "[%s]\t\t\t= Active Sources\n", strings.Join(srcNames, ","))
	keys := make([]string, 0, len(ip.BCs))
	for k := range ip.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "BCs[%s] = %s,%s\n", key, ip.BCs[key][0], ip.BCs[key][1])
	}
}
