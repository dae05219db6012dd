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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/reactamr/InputParameters"
	"github.com/notargets/reactamr/advance"
	"github.com/notargets/reactamr/checkpoint"
	"github.com/notargets/reactamr/diagnostics"
	"github.com/notargets/reactamr/model_problems/ReactingFlow"
	"github.com/notargets/reactamr/utils"
)

type RunOptions struct {
	InputFile    string
	Graph        bool
	PlotSteps    int
	Delay        time.Duration
	Profile      string // cpu or mem
	StopFile     string
	Restart      bool
	MetricsFile  string
	Instructions bool
	Verbose      bool
	LogOutput    io.Writer
}

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Advance a reacting flow problem to its final time",
	Long: `
Reads a YAML input file, builds the level hierarchy and advances it until
FinalTime or MaxSteps, checkpointing every CheckpointInterval steps.

Touching the stop file ends the run cleanly after the current step.

reactamr run -I input.yaml -g`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			ro  = &RunOptions{LogOutput: os.Stderr}
			err error
		)
		if ro.InputFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		ro.Graph, _ = cmd.Flags().GetBool("graph")
		ro.PlotSteps, _ = cmd.Flags().GetInt("plotSteps")
		dr, _ := cmd.Flags().GetInt("delay")
		ro.Delay = time.Duration(dr) * time.Millisecond
		ro.Profile, _ = cmd.Flags().GetString("profile")
		ro.StopFile, _ = cmd.Flags().GetString("stopFile")
		ro.Restart, _ = cmd.Flags().GetBool("restart")
		ro.MetricsFile, _ = cmd.Flags().GetString("metricsFile")
		ro.Instructions, _ = cmd.Flags().GetBool("instructions")
		ro.Verbose = viper.GetBool("verbose")
		if len(ro.InputFile) == 0 {
			fmt.Printf("error: must supply an input parameters file (-I, --inputConditionsFile)\n")
			fmt.Printf("Example File:%s\n", exampleInput)
			os.Exit(1)
		}
		switch strings.ToLower(ro.Profile) {
		case "":
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		default:
			fmt.Printf("error: unknown profile type %q, use cpu or mem\n", ro.Profile)
			os.Exit(1)
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		if _, err = Run(ctx, ro, os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			cancel()
			os.Exit(1)
		}
	},
}

const exampleInput = `
########################################
Title: "Sod shock tube"
InitType: sod # uniform, sod, pulse or mms
NCells: [200, 1, 1]
MaxGridSize: 50
BCs:
  x: [wall, wall]
Scheme: SDC
SDCNodes: 3
Cv: 1
CFL: 0.5
FinalTime: 0.2
########################################
`

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Scheme (MOL or SDC)\n\t- CFL\n\t- FinalTime")
	RunCmd.Flags().BoolP("graph", "g", false, "display a graph of level 0 while computing solution (1D only)")
	RunCmd.Flags().IntP("delay", "d", 0, "milliseconds of delay for plotting")
	RunCmd.Flags().IntP("plotSteps", "s", 1, "number of steps before plotting each frame")
	RunCmd.Flags().String("profile", "", "write a cpu or mem profile to the working directory")
	RunCmd.Flags().String("stopFile", "", "end the run after the current step when this file is created")
	RunCmd.Flags().BoolP("restart", "r", false, "resume from the latest checkpoint in CheckpointDir")
	RunCmd.Flags().String("metricsFile", "", "write the run metrics in Prometheus text format on exit")
	RunCmd.Flags().Bool("instructions", false, "count CPU instructions of every step (linux perf events)")
}

func readInput(fileName string) (ip *InputParameters.InputParameters, err error) {
	var data []byte
	if data, err = os.ReadFile(fileName); err != nil {
		return
	}
	ip = InputParameters.NewInputParameters()
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}
	if err = ip.Validate(); err != nil {
		return nil, err
	}
	return
}

// Run advances the problem of ro.InputFile and prints its summary to out
func Run(ctx context.Context, ro *RunOptions, out io.Writer) (h *advance.Hierarchy, err error) {
	var (
		ip      *InputParameters.InputParameters
		setup   *ReactingFlow.Setup
		store   *checkpoint.BadgerStore
		plot    *plotter
		stop    = make(chan struct{})
		logW    = ro.LogOutput
		metrics = diagnostics.NewMetrics(prometheus.NewRegistry())
		tInstr  uint64
	)
	if ip, err = readInput(ro.InputFile); err != nil {
		return
	}
	ip.Fprint(out)
	if logW == nil {
		logW = os.Stderr
	}
	logger := diagnostics.NewLogger(ro.Verbose || ip.Verbose, logW)
	if setup, err = ReactingFlow.NewSetup(ip); err != nil {
		return
	}
	if h, err = setup.NewHierarchy(ip, logger); err != nil {
		return
	}
	h.Observer = metrics
	logger = logger.With(slog.String("run", h.Run.RunID.String()))

	if ip.CheckpointDir != "" && (ip.CheckpointInterval > 0 || ro.Restart) {
		if store, err = checkpoint.OpenBadger(ip.CheckpointDir, logger); err != nil {
			return
		}
		defer store.Close()
	}
	if ro.Restart {
		if store == nil {
			return nil, fmt.Errorf("restart needs a CheckpointDir")
		}
		var s *checkpoint.Snapshot
		switch s, err = store.Load(ctx); {
		case errors.Is(err, checkpoint.ErrNoCheckpoint):
			logger.Info("no checkpoint to restart from, starting at t = 0")
		case err != nil:
			return
		default:
			if err = h.Restore(s); err != nil {
				return
			}
			logger.Info("restarted", slog.Int("step", h.Step), slog.Float64("time", h.Time))
		}
		err = nil
	}
	if ro.StopFile != "" {
		var w *fsnotify.Watcher
		if w, err = watchStopFile(ro.StopFile, stop, logger); err != nil {
			return
		}
		defer w.Close()
	}
	if ro.Graph {
		if ip.Dim != 1 {
			logger.Warn("graph is only drawn for one dimensional runs")
		} else {
			plot = newPlotter(setup, ip)
		}
	}

	stopped := func() bool {
		select {
		case <-stop:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	// Checkpoints are written even after an interrupt has cancelled ctx
	save := func() error {
		if store == nil {
			return nil
		}
		return store.Save(context.WithoutCancel(ctx), h.Snapshot())
	}
	for h.Time < ip.FinalTime*(1-1.e-12) && (ip.MaxSteps == 0 || h.Step < ip.MaxSteps) {
		if stopped() {
			logger.Info("stop requested", slog.Int("step", h.Step), slog.Float64("time", h.Time))
			if err = save(); err != nil {
				return
			}
			break
		}
		var (
			dt   = math.Min(h.EstimateTimeStep(), ip.FinalTime-h.Time)
			sums []advance.StepSummary
		)
		if ro.Instructions {
			var n uint64
			n, err = diagnostics.CountInstructions(func() (err error) {
				sums, err = h.Advance(context.WithoutCancel(ctx), dt)
				return
			})
			if errors.Is(err, diagnostics.ErrNoPerfCounters) {
				logger.Warn("instruction counting disabled", slog.String("reason", err.Error()))
				ro.Instructions, err = false, nil
			}
			tInstr += n
		} else {
			sums, err = h.Advance(context.WithoutCancel(ctx), dt)
		}
		if err != nil {
			return
		}
		logger.Debug("step", slog.Int("step", h.Step), slog.Float64("time", h.Time),
			slog.Float64("dt", dt), slog.Int("level_steps", len(sums)))
		if ip.CheckpointInterval > 0 && h.Step%ip.CheckpointInterval == 0 {
			if err = save(); err != nil {
				return
			}
		}
		if plot != nil && h.Step%max(ro.PlotSteps, 1) == 0 {
			plot.Plot(h, ro.Delay)
		}
	}
	logger.Info("run finished", slog.Int("step", h.Step), slog.Float64("time", h.Time),
		slog.String("memory", utils.GetMemUsage()))
	diagnostics.Fprint(out, diagnostics.Summarize(h), h.Run)
	if tInstr > 0 {
		fmt.Fprintf(out, "instructions: %d total, %d per step\n", tInstr, tInstr/uint64(max(h.Step, 1)))
	}
	if ro.MetricsFile != "" {
		if err = prometheus.WriteToTextfile(ro.MetricsFile, metrics.Registry); err != nil {
			return
		}
	}
	return
}

// watchStopFile closes stop once the file exists
func watchStopFile(fileName string, stop chan struct{}, logger *slog.Logger) (w *fsnotify.Watcher, err error) {
	var (
		target = filepath.Clean(fileName)
		once   sync.Once
		halt   = func() { once.Do(func() { close(stop) }) }
	)
	if w, err = fsnotify.NewWatcher(); err != nil {
		return
	}
	if err = w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch stop file %s: %w", fileName, err)
	}
	if _, err = os.Stat(target); err == nil {
		halt()
	}
	err = nil
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					halt()
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("stop file watcher", slog.String("error", werr.Error()))
			}
		}
	}()
	return
}
