//go:build linux || darwin || freebsd

package device

import (
	"strings"

	"golang.org/x/sys/unix"
)

// uname returns an `uname -a` style description and the kernel release.
func uname() (string, string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", "", err
	}
	fields := []string{
		unix.ByteSliceToString(u.Sysname[:]),
		unix.ByteSliceToString(u.Nodename[:]),
		unix.ByteSliceToString(u.Release[:]),
		unix.ByteSliceToString(u.Version[:]),
		unix.ByteSliceToString(u.Machine[:]),
	}
	return strings.Join(fields, " "), fields[2], nil
}
