//go:build unix

package procenv

import (
	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// getsid returns the session id of pid, 0 meaning the calling process.
func getsid(pid int) (int, error) {
	return unix.Getsid(pid)
}

// isTerminal separates "not a terminal" from "not a descriptor": isatty
// reports false for both, so a false answer is confirmed with F_GETFD.
func isTerminal(fd uintptr) (bool, error) {
	if isatty.IsTerminal(fd) {
		return true, nil
	}
	if _, err := unix.FcntlInt(fd, unix.F_GETFD, 0); err != nil {
		return false, err
	}
	return false, nil
}
