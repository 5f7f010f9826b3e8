//go:build !linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileSize returns st_size for regular files. Block device sizes are only
// queried on Linux.
func FileSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return 0, fmt.Errorf("%w (mode %#o)", ErrUnsupportedFileType, st.Mode&unix.S_IFMT)
	}
	return st.Size, nil
}
