// Package checkpoint persists the restartable state of a run: the old state
// of every level plus the run counters.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/utils"
)

var (
	ErrNoCheckpoint  = errors.New("no checkpoint found")
	ErrLayoutChanged = errors.New("checkpoint layout does not match the level")
)

type LevelData struct {
	Lev   int
	Time  float64
	NComp int
	NGrow int
	Boxes []grid.Box
	Fabs  [][]float64 // Raw Fab storage per patch, ghost cells included
}

// NewLevelData copies the storage of mf
func NewLevelData(lev int, time float64, mf *grid.MultiFab) (ld LevelData) {
	ld = LevelData{
		Lev:   lev,
		Time:  time,
		NComp: mf.NComp,
		NGrow: mf.NGrow,
		Boxes: append([]grid.Box(nil), mf.BA...),
		Fabs:  make([][]float64, mf.NumPatches()),
	}
	for p, f := range mf.Fabs {
		ld.Fabs[p] = append([]float64(nil), f.Data.DataP...)
	}
	return
}

// Restore copies the stored data back into mf, whose layout must match
func (ld LevelData) Restore(mf *grid.MultiFab) error {
	if ld.NComp != mf.NComp || ld.NGrow != mf.NGrow || len(ld.Boxes) != mf.NumPatches() {
		return fmt.Errorf("%w: level %d has %d components, %d ghosts, %d patches; stored %d, %d, %d",
			ErrLayoutChanged, ld.Lev, mf.NComp, mf.NGrow, mf.NumPatches(), ld.NComp, ld.NGrow, len(ld.Boxes))
	}
	for p, f := range mf.Fabs {
		if ld.Boxes[p] != mf.BA[p] || len(ld.Fabs[p]) != len(f.Data.DataP) {
			return fmt.Errorf("%w: level %d patch %d box %v, stored %v", ErrLayoutChanged, ld.Lev, p, mf.BA[p], ld.Boxes[p])
		}
		nr, nc := f.Data.Dims()
		f.Data.CopyFrom(utils.NewMatrix(nr, nc, ld.Fabs[p]))
	}
	return nil
}

// RunRecord holds the run level counters
type RunRecord struct {
	RunID             string
	MassAdded         float64
	MaterialLost      [5]float64 // Mass, three momenta, energy
	DensityFloored    int64
	EnergyReset       int64
	EnergyRepaired    int64
	SpeciesNormalized int64
	RefluxMassDelta   float64
	CPUTime           time.Duration
}

type Snapshot struct {
	Step   int
	Time   float64
	Dt     float64
	Run    RunRecord
	Levels []LevelData
}

func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (s *Snapshot, err error) {
	s = &Snapshot{}
	if err = gob.NewDecoder(bytes.NewReader(data)).Decode(s); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return
}

// Store saves and loads snapshots
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	LoadStep(ctx context.Context, step int) (*Snapshot, error)
	Close() error
}
