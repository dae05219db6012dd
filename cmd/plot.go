/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"sync"
	"time"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"

	"github.com/notargets/reactamr/InputParameters"
	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/model_problems/ReactingFlow"
	"github.com/notargets/reactamr/sod_shock_tube"
)

// plotter draws density, velocity and pressure on level 0 of a 1D run
type plotter struct {
	setup    *ReactingFlow.Setup
	sod      bool
	xmin     float64
	xmax     float64
	chart    *chart2d.Chart2D
	colorMap *utils2.ColorMap
	plotOnce sync.Once
	X        []float64
	Rho      []float64
	U        []float64
	P        []float64
	u        []float64
}

func newPlotter(setup *ReactingFlow.Setup, ip *InputParameters.InputParameters) *plotter {
	n := ip.NCells[0]
	return &plotter{
		setup: setup,
		sod:   setup.Init == ReactingFlow.SOD && ip.ProbLo[0] == 0 && ip.ProbHi[0] == 1,
		xmin:  ip.ProbLo[0],
		xmax:  ip.ProbHi[0],
		X:     make([]float64, n),
		Rho:   make([]float64, n),
		U:     make([]float64, n),
		P:     make([]float64, n),
		u:     make([]float64, ip.StateLayout().NumState()),
	}
}

// sample fills the plot arrays from level 0, which covers the domain
func (pl *plotter) sample(lv *advance.Level) {
	lo := lv.Geom.Domain.Lo[0]
	lv.Old.ForEachValid(func(_ int, f *grid.Fab, iv grid.IntVect) {
		i := iv[0] - lo
		f.GetCell(iv, pl.u)
		pr := pl.setup.Gas.Primitive(pl.u)
		pl.X[i] = lv.Geom.CellCenter(iv)[0]
		pl.Rho[i], pl.U[i], pl.P[i] = pr.Rho, pr.Vel[0], pr.P
	})
}

func (pl *plotter) Plot(h *advance.Hierarchy, delay time.Duration) {
	var (
		fmin, fmax = float32(-0.1), float32(1.2)
	)
	pl.plotOnce.Do(func() {
		pl.chart = chart2d.NewChart2D(1920, 1280, float32(pl.xmin), float32(pl.xmax), fmin, fmax)
		pl.colorMap = utils2.NewColorMap(-1, 1, 1)
		go pl.chart.Plot()
	})
	pl.sample(h.Levels[0])
	pSeries := func(field []float64, name string, color float32, gl chart2d.GlyphType) {
		if err := pl.chart.AddSeries(name, pl.X, field, gl, chart2d.Solid, pl.colorMap.GetRGB(color)); err != nil {
			panic("unable to add graph series")
		}
	}
	pSeries(pl.Rho, "Rho", -0.7, chart2d.NoGlyph)
	pSeries(pl.U, "U", 0.0, chart2d.NoGlyph)
	pSeries(pl.P, "P", 0.7, chart2d.NoGlyph)
	if pl.sod {
		X, Rho, P, U, _, _, _, _, _ := sod_shock_tube.SOD_calc(h.Time)
		aSeries := func(field []float64, name string, color float32) {
			if err := pl.chart.AddSeries(name, X, field, chart2d.XGlyph, chart2d.NoLine, pl.colorMap.GetRGB(color)); err != nil {
				panic("unable to add exact solution " + name)
			}
		}
		aSeries(Rho, "ExactRho", -0.7)
		aSeries(U, "ExactU", 0.0)
		aSeries(P, "ExactP", 0.7)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
}
