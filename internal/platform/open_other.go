//go:build !linux

package platform

import "os"

// OpenDestination creates or truncates path for reading and writing. O_DIRECT
// is Linux-only, so direct is ignored.
func OpenDestination(path string, perm os.FileMode, _ bool) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}
