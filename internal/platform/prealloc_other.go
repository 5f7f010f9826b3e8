//go:build !linux

package platform

import "os"

// Preallocate does nothing outside Linux; space errors surface on write.
func Preallocate(_ *os.File, _ int64) error { return nil }
