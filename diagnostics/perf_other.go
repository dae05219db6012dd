//go:build !linux

package diagnostics

func CountInstructions(fn func() error) (uint64, error) {
	if err := fn(); err != nil {
		return 0, err
	}
	return 0, ErrNoPerfCounters
}
