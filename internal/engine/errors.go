package engine

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/bamsammich/ringio/internal/platform"
)

var (
	// ErrTooManySegments is returned for files whose block count exceeds the
	// kernel's per-call iovec limit. Such files are rejected before anything
	// is allocated or submitted.
	ErrTooManySegments = errors.New("too many segments for one vectored operation")
	// ErrStaleHandle is returned when a completion does not match a live
	// request on the ring that reaped it.
	ErrStaleHandle = errors.New("stale completion handle")
	// ErrDoubleRelease is returned when a block is released a second time.
	ErrDoubleRelease = errors.New("block already released")
	// ErrRingClosed is returned by operations on a closed Ring.
	ErrRingClosed = errors.New("ring closed")
	// ErrNothingInFlight is returned by WaitCompletion when no request is
	// outstanding; waiting would block forever.
	ErrNothingInFlight = errors.New("no request in flight")
	// ErrSameFile is returned by CopyFile when source and destination name
	// the same file, by path or through a hard link.
	ErrSameFile = errors.New("source and destination are the same file")
	// ErrVerifyMismatch is returned when a copied file's checksum differs from
	// its source.
	ErrVerifyMismatch = errors.New("destination does not match source")
	// ErrUnsupportedFileType is returned for pipes, sockets, character
	// devices and anything else without a fixed length.
	ErrUnsupportedFileType = platform.ErrUnsupportedFileType
)

// AllocationError reports a failed aligned block allocation.
type AllocationError struct {
	Size int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate %d-byte block: %v", e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// SizeQueryError reports that a file's length could not be determined.
type SizeQueryError struct {
	Path string
	Err  error
}

func (e *SizeQueryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("query size: %v", e.Err)
	}
	return fmt.Sprintf("query size of %s: %v", e.Path, e.Err)
}

func (e *SizeQueryError) Unwrap() error { return e.Err }

// RingInitError reports that the kernel ring could not be created.
type RingInitError struct {
	Depth uint32
	Err   error
}

func (e *RingInitError) Error() string {
	return fmt.Sprintf("init ring (depth %d): %v", e.Depth, e.Err)
}

func (e *RingInitError) Unwrap() error { return e.Err }

// SubmissionError reports a request that could not be queued or handed to
// the kernel.
type SubmissionError struct {
	Op  platform.Op
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IoError carries the errno from a negative completion result.
type IoError struct {
	Op    platform.Op
	Errno syscall.Errno
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Errno)
}

func (e *IoError) Unwrap() error { return e.Errno }

// ShortTransferError reports a completion that moved fewer bytes than the
// request covered. Short transfers are not resubmitted.
type ShortTransferError struct {
	Op   platform.Op
	Want int64
	Got  int64
}

func (e *ShortTransferError) Error() string {
	return fmt.Sprintf("%s: short transfer: %d of %d bytes", e.Op, e.Got, e.Want)
}
