//go:build unix

package platform

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapAligned returns size bytes of anonymous, zeroed memory whose base is
// aligned to BlockSize. The memory lives outside the Go heap, so its address
// is stable for the kernel; it must be returned with Unmap.
func MapAligned(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}
	page := os.Getpagesize()
	length := (size + page - 1) / page * page

	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%BlockSize != 0 {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mmap: base not aligned to %d bytes", BlockSize)
	}
	return mem[:size:length], nil
}

// Unmap releases memory obtained from MapAligned.
func Unmap(mem []byte) error {
	if err := unix.Munmap(mem[:cap(mem)]); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
