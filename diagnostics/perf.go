package diagnostics

import "errors"

// ErrNoPerfCounters means the work ran but could not be counted
var ErrNoPerfCounters = errors.New("hardware instruction counter unavailable")
