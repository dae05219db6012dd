package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/reactamr/checkpoint"
)

func writeInput(t *testing.T, dir, extra string) string {
	t.Helper()
	fileInput := []byte(`
Title: Test Case
InitType: sod
NCells: [64, 1, 1]
MaxGridSize: 16
BCs:
  x: [wall, wall]
Scheme: SDC
SDCNodes: 3
Cv: 1
CFL: 0.5
FinalTime: 0.05
` + extra)
	fileName := filepath.Join(dir, "input.yaml")
	require.NoError(t, os.WriteFile(fileName, fileInput, 0600))
	return fileName
}

func TestRunToFinalTime(t *testing.T) {
	var (
		dir = t.TempDir()
		out bytes.Buffer
		ro  = &RunOptions{
			InputFile:   writeInput(t, dir, ""),
			MetricsFile: filepath.Join(dir, "metrics.prom"),
			LogOutput:   io.Discard,
		}
	)
	h, err := Run(context.Background(), ro, &out)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, h.Time, 1.e-12)
	assert.Positive(t, h.Step)
	assert.Contains(t, out.String(), "level 0")
	metrics, err := os.ReadFile(ro.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "reactamr_steps_total")
}

func TestRunRestartsFromCheckpoint(t *testing.T) {
	var (
		dir   = t.TempDir()
		extra = "CheckpointInterval: 2\nCheckpointDir: " + filepath.Join(dir, "chk") + "\n"
	)
	first := writeInput(t, dir, extra+"MaxSteps: 4\n")
	h, err := Run(context.Background(), &RunOptions{InputFile: first, LogOutput: io.Discard}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 4, h.Step)
	var (
		t4    = h.Time
		runID = h.Run.RunID
	)

	second := writeInput(t, dir, extra+"MaxSteps: 6\n")
	h, err = Run(context.Background(), &RunOptions{InputFile: second, Restart: true, LogOutput: io.Discard}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 6, h.Step)
	assert.Greater(t, h.Time, t4)
	assert.Equal(t, runID, h.Run.RunID)
}

func TestRunStopFile(t *testing.T) {
	var (
		dir      = t.TempDir()
		stopFile = filepath.Join(dir, "STOP")
	)
	require.NoError(t, os.WriteFile(stopFile, nil, 0600))
	ro := &RunOptions{
		InputFile: writeInput(t, dir, ""),
		StopFile:  stopFile,
		LogOutput: io.Discard,
	}
	h, err := Run(context.Background(), ro, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Step)
}

func TestRunInterruptedWritesCheckpoint(t *testing.T) {
	var (
		dir    = t.TempDir()
		chkDir = filepath.Join(dir, "chk")
		extra  = "CheckpointInterval: 100\nCheckpointDir: " + chkDir + "\n"
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := Run(ctx, &RunOptions{InputFile: writeInput(t, dir, extra), LogOutput: io.Discard}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Step)

	store, err := checkpoint.OpenBadger(chkDir, nil)
	require.NoError(t, err)
	defer store.Close()
	s, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Step)
	assert.Equal(t, h.Run.RunID.String(), s.Run.RunID)
	require.Len(t, s.Levels, 1)
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), &RunOptions{InputFile: writeInput(t, dir, "CFL: 4\n"), LogOutput: io.Discard}, io.Discard)
	assert.Error(t, err)
	_, err = Run(context.Background(), &RunOptions{InputFile: filepath.Join(dir, "missing.yaml")}, io.Discard)
	assert.Error(t, err)
}
