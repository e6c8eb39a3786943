//go:build !linux

package forklimit

import (
	"errors"
	"runtime"
)

var errAffinityUnsupported = errors.New("cpu affinity is not supported on " + runtime.GOOS)

// CPUAffinity is only available on Linux; elsewhere the limit stays unbounded.
func CPUAffinity() (int, error) {
	return 0, errAffinityUnsupported
}
