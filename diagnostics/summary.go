package diagnostics

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/types"
)

type LevelSummary struct {
	Level                  int
	Time                   float64
	NumCells               int
	NumCut, NumCovered     int
	Mass, Energy           float64
	MinDensity, MaxDensity float64
	DensityRMS             float64
	MaxTemperature         float64
}

// Summarize reduces the old state of every level over its fluid cells
func Summarize(h *advance.Hierarchy) (ls []LevelSummary) {
	for _, lv := range h.Levels {
		var rho, temp []float64
		lv.Old.ForEachValid(func(p int, f *grid.Fab, iv grid.IntVect) {
			if lv.Mask.Covered(p, iv) {
				return
			}
			rho = append(rho, f.Get(iv, types.Density))
			temp = append(temp, f.Get(iv, types.Temp))
		})
		s := LevelSummary{
			Level:      lv.Lev,
			Time:       lv.TOld,
			NumCells:   lv.BA.NumPts(),
			NumCut:     lv.Mask.NumCut(),
			NumCovered: lv.Mask.NumCovered(),
			Mass:       lv.Mask.VolumeWeightedSum(lv.Old, types.Density),
			Energy:     lv.Mask.VolumeWeightedSum(lv.Old, types.Eden),
		}
		if len(rho) > 0 {
			s.MinDensity, s.MaxDensity = floats.Min(rho), floats.Max(rho)
			s.DensityRMS = floats.Norm(rho, 2) / math.Sqrt(float64(len(rho)))
			s.MaxTemperature = floats.Max(temp)
		}
		ls = append(ls, s)
	}
	return
}

func Fprint(w io.Writer, ls []LevelSummary, run *advance.RunContext) {
	for _, s := range ls {
		fmt.Fprintf(w, "level %d t=%8.5f cells=%d cut=%d covered=%d mass=%14.8e energy=%14.8e rho=[%8.5f,%8.5f] Tmax=%8.5g\n",
			s.Level, s.Time, s.NumCells, s.NumCut, s.NumCovered, s.Mass, s.Energy, s.MinDensity, s.MaxDensity, s.MaxTemperature)
	}
	if run == nil {
		return
	}
	rec := run.Record()
	fmt.Fprintf(w, "run %s: floored=%d energy reset=%d repaired=%d species=%d mass added=%8.3e reflux mass=%8.3e cpu=%v\n",
		rec.RunID, rec.DensityFloored, rec.EnergyReset, rec.EnergyRepaired, rec.SpeciesNormalized,
		rec.MassAdded, rec.RefluxMassDelta, rec.CPUTime)
	fmt.Fprintf(w, "boundary outflow: mass=%8.3e momentum=[%8.3e,%8.3e,%8.3e] energy=%8.3e\n",
		rec.MaterialLost[0], rec.MaterialLost[1], rec.MaterialLost[2], rec.MaterialLost[3], rec.MaterialLost[4])
}
