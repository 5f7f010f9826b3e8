//go:build linux

package platform

import (
	"strconv"
	"strings"
	"sync"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"
)

var ioURingAvailable = sync.OnceValue(func() bool {
	return kernelSupportsIOURing() && probeIOURing()
})

// IOURingAvailable reports whether the running kernel supports vectored
// io_uring reads and writes and lets this process create a ring. The result
// is computed once.
func IOURingAvailable() bool {
	return ioURingAvailable()
}

// probeIOURing creates and tears down a one-entry ring. Containers commonly
// block io_uring_setup via seccomp even on new kernels.
func probeIOURing() bool {
	ring, err := iouring.New(1)
	if err != nil {
		return false
	}
	_ = ring.Close()
	return true
}

// kernelSupportsIOURing checks if the kernel version is >= 5.1, the first
// release with IORING_OP_READV/WRITEV.
func kernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}

	major, minor, ok := parseKernelRelease(unix.ByteSliceToString(uname.Release[:]))
	if !ok {
		return false
	}
	return major > 5 || (major == 5 && minor >= 1)
}

// parseKernelRelease extracts major.minor from a uname release string such
// as "6.8.0-45-generic".
func parseKernelRelease(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx > 0 {
		minorStr = minorStr[:idx]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
