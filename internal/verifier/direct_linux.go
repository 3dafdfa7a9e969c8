//go:build linux

package verifier

import (
	"errors"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// openSample opens path read-only, bypassing the page cache when direct is
// set. Filesystems that reject O_DIRECT fall back to a buffered open.
func openSample(path string, direct bool) (*os.File, error) {
	if !direct {
		return os.Open(path)
	}
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_DIRECT, 0)
	if errors.Is(err, unix.EINVAL) {
		return os.Open(path)
	}
	return f, err
}

// alignedBuffer returns a size-byte slice whose first element sits on an
// align boundary.
func alignedBuffer(size, align int) []byte {
	buf := make([]byte, size+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) & uintptr(align-1)); rem != 0 {
		off = align - rem
	}
	return buf[off : off+size : off+size]
}
