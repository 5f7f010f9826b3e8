//go:build !linux

package platform

// IOURingAvailable always returns false on non-Linux platforms.
func IOURingAvailable() bool {
	return false
}
