//go:build linux

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileSize returns the byte length behind fd: st_size for regular files and
// BLKGETSIZE64 for block devices. Pipes, sockets and character devices have
// no fixed length and yield ErrUnsupportedFileType.
func FileSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return st.Size, nil
	case unix.S_IFBLK:
		var bytes uint64
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64,
			uintptr(unsafe.Pointer(&bytes)))
		if errno != 0 {
			return 0, fmt.Errorf("ioctl BLKGETSIZE64: %w", errno)
		}
		return int64(bytes), nil //nolint:gosec // G115: device sizes fit in int64
	default:
		return 0, fmt.Errorf("%w (mode %#o)", ErrUnsupportedFileType, st.Mode&unix.S_IFMT)
	}
}
