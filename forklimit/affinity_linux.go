//go:build linux

package forklimit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CPUAffinity returns the number of CPUs the process may be scheduled on.
func CPUAffinity() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, fmt.Errorf("sched_getaffinity failed: %w", err)
	}
	return set.Count(), nil
}
