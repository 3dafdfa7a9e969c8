//go:build !(linux || darwin || freebsd)

package device

import "runtime"

func uname() (string, string, error) {
	return runtime.GOOS + " " + runtime.GOARCH, "Unknown", nil
}
