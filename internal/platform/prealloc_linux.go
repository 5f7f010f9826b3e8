//go:build linux

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for f so that running out of space shows
// up before any data is read. Filesystems without fallocate support are not
// an error; a full or too-small filesystem is.
func Preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	err := unix.Fallocate(int(f.Fd()), 0, 0, size) //nolint:gosec // G115: fd values are small non-negative integers
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL):
		return nil
	default:
		return fmt.Errorf("fallocate %d bytes: %w", size, err)
	}
}
