//go:build !unix

package procenv

import "github.com/mattn/go-isatty"

// getsid is unavailable without POSIX sessions; the session check is skipped.
func getsid(int) (int, error) {
	return 0, ErrSessionUnsupported
}

// isTerminal accepts Cygwin/MSYS pseudo terminals as interactive on Windows.
func isTerminal(fd uintptr) (bool, error) {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), nil
}
