//go:build !unix

package forklimit

// ForkSupported reports whether child processes can be forked on this platform.
func ForkSupported() bool {
	return false
}
