// Package platform holds the Linux syscall surface ringio is built on: a raw
// io_uring ring, aligned anonymous memory, file size queries and the open
// flags used for direct I/O. Non-Linux builds get stubs that report
// ErrUnsupported.
package platform

import "errors"

// BlockSize is the unit of allocation and the alignment required by O_DIRECT.
const BlockSize = 4096

// IOVMax is the kernel's per-call iovec limit (UIO_MAXIOV).
const IOVMax = 1024

var (
	// ErrUnsupported is returned when io_uring is not available on this platform.
	ErrUnsupported = errors.New("io_uring is not supported on this platform")
	// ErrRingClosed is returned by Ring methods after Close.
	ErrRingClosed = errors.New("ring closed")
	// ErrQueueFull is returned when no submission queue entry is free.
	ErrQueueFull = errors.New("submission queue full")
	// ErrUnsupportedFileType is returned by FileSize for anything that is not a
	// regular file or a block device.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// Op is an io_uring opcode.
type Op uint8

const (
	OpReadv  Op = 1 // IORING_OP_READV
	OpWritev Op = 2 // IORING_OP_WRITEV
)

func (o Op) String() string {
	switch o {
	case OpReadv:
		return "readv"
	case OpWritev:
		return "writev"
	default:
		return "unknown"
	}
}

// SQEAsync asks the kernel to always punt the request to its async workers
// (IOSQE_ASYNC).
const SQEAsync uint8 = 1 << 4

// CQE is a completion queue entry as laid out by the kernel (16 bytes).
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}
