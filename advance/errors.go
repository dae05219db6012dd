package advance

import (
	"errors"
	"fmt"

	"github.com/notargets/reactamr/grid"
)

var (
	ErrReactionFailed = errors.New("reaction integration failed")
	ErrUnknownScheme  = errors.New("unknown time advance scheme")
	ErrLevelSetup     = errors.New("inconsistent level setup")
)

// ReactionError locates the cell whose chemistry integration failed. It
// matches ErrReactionFailed and unwraps to the stepper's error.
type ReactionError struct {
	Level int
	Patch int
	Cell  grid.IntVect
	Time  float64
	Err   error
}

func (e *ReactionError) Error() string {
	return fmt.Sprintf("%s: level %d patch %d cell %v time %g: %v",
		ErrReactionFailed, e.Level, e.Patch, e.Cell, e.Time, e.Err)
}

func (e *ReactionError) Is(target error) bool { return target == ErrReactionFailed }

func (e *ReactionError) Unwrap() error { return e.Err }
