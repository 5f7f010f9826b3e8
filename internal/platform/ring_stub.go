//go:build !linux

package platform

import "golang.org/x/sys/unix"

// Ring is a placeholder on non-Linux platforms; SetupRing always fails.
type Ring struct{}

// SetupRing always returns ErrUnsupported on non-Linux platforms.
func SetupRing(_ uint32) (*Ring, error) {
	return nil, ErrUnsupported
}

func (r *Ring) Entries() uint32 { return 0 }

func (r *Ring) Close() error { return nil }

func (r *Ring) PrepVec(_ Op, _ int, _ []unix.Iovec, _ uint64, _ uint8, _ uint64) error {
	return ErrUnsupported
}

func (r *Ring) Submit() (int, error) { return 0, ErrUnsupported }

func (r *Ring) WaitCQE() (CQE, error) { return CQE{}, ErrUnsupported }

func (r *Ring) SeenCQE() {}
