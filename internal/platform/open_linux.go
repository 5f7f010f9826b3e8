//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// OpenDestination creates or truncates path for reading and writing with the
// given permission bits. With direct set it asks for O_DIRECT and falls back
// to buffered I/O when the filesystem rejects the flag (tmpfs, some FUSE
// mounts). The returned bool reports whether O_DIRECT is in effect.
func OpenDestination(path string, perm os.FileMode, direct bool) (*os.File, bool, error) {
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if direct {
		f, err := os.OpenFile(path, flags|unix.O_DIRECT, perm)
		if err == nil {
			return f, true, nil
		}
		if !errors.Is(err, unix.EINVAL) {
			return nil, false, err
		}
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}
