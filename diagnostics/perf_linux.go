//go:build linux

package diagnostics

import (
	"fmt"

	perf "github.com/hodgesds/perf-utils"
)

// CountInstructions runs fn once, under a hardware instruction counter when
// the kernel grants one.
func CountInstructions(fn func() error) (uint64, error) {
	var (
		ran  bool
		ferr error
	)
	pv, err := perf.CPUInstructions(func() error {
		ran = true
		ferr = fn()
		return ferr
	})
	switch {
	case !ran:
		if ferr = fn(); ferr != nil {
			return 0, ferr
		}
		return 0, fmt.Errorf("%w: %v", ErrNoPerfCounters, err)
	case ferr != nil:
		return 0, ferr
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrNoPerfCounters, err)
	}
	return pv.Value, nil
}
