//go:build linux

package platform

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// io_uring constants.
const (
	ioringEnterGetevents = 1 << 0
	ioringFeatSingleMmap = 1 << 0

	ioringOffSQRing = 0
	ioringOffCQRing = 0x8000000
	ioringOffSQEs   = 0x10000000
)

// io_uring_sqe: submission queue entry (64 bytes).
type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIG       uint16
	personality uint16
	spliceFdIn  int32
	_pad2       [2]uint64
}

// io_uring_params: setup parameters.
type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ioUringSQRingOffsets
	cqOff        ioUringCQRingOffsets
}

type ioUringSQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type ioUringCQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

const (
	sqeSize = 64
	cqeSize = 16
)

// Ring wraps the memory-mapped io_uring state. It is not safe for concurrent
// use: one goroutine owns both the submission and the completion side.
type Ring struct {
	fd        int
	sqEntries uint32
	cqEntries uint32

	// SQ ring pointers (into mmap'd memory).
	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqArray   unsafe.Pointer
	sqes      unsafe.Pointer
	sqRingMem []byte

	// CQ ring pointers.
	cqHead    *uint32
	cqTail    *uint32
	cqMask    uint32
	cqes      unsafe.Pointer
	cqRingMem []byte

	sqesMem []byte

	// SQEs written to the ring but not yet handed to io_uring_enter.
	unsubmitted uint32
}

// SetupRing creates and maps an io_uring instance with room for entries
// submissions.
func SetupRing(entries uint32) (*Ring, error) {
	var params ioUringParams
	fd, _, errno := unix.Syscall(
		unix.SYS_IO_URING_SETUP,
		uintptr(entries),
		uintptr(unsafe.Pointer(&params)),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &Ring{
		fd:        int(fd),
		sqEntries: params.sqEntries,
		cqEntries: params.cqEntries,
	}

	if err := r.mmap(&params); err != nil {
		_ = unix.Close(r.fd)
		return nil, err
	}

	return r, nil
}

func (r *Ring) mmap(params *ioUringParams) error {
	sqRingSize := uintptr(params.sqOff.array) + uintptr(params.sqEntries)*4
	cqRingSize := uintptr(params.cqOff.cqes) + uintptr(params.cqEntries)*cqeSize
	singleMmap := params.features&ioringFeatSingleMmap != 0
	if singleMmap && cqRingSize > sqRingSize {
		sqRingSize = cqRingSize
	}

	sqMem, err := unix.Mmap(r.fd, ioringOffSQRing, int(sqRingSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	r.sqRingMem = sqMem

	sqesMem, err := unix.Mmap(r.fd, ioringOffSQEs, int(uintptr(params.sqEntries)*sqeSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(r.sqRingMem)
		return fmt.Errorf("mmap sqes: %w", err)
	}
	r.sqesMem = sqesMem

	if singleMmap {
		r.cqRingMem = sqMem
	} else {
		cqMem, err := unix.Mmap(r.fd, ioringOffCQRing, int(cqRingSize),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			_ = unix.Munmap(r.sqesMem)
			_ = unix.Munmap(r.sqRingMem)
			return fmt.Errorf("mmap cq ring: %w", err)
		}
		r.cqRingMem = cqMem
	}

	base := unsafe.Pointer(&sqMem[0])
	r.sqHead = (*uint32)(unsafe.Add(base, params.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(base, params.sqOff.tail))
	r.sqMask = *(*uint32)(unsafe.Add(base, params.sqOff.ringMask))
	r.sqArray = unsafe.Add(base, params.sqOff.array)
	r.sqes = unsafe.Pointer(&sqesMem[0])

	cqBase := unsafe.Pointer(&r.cqRingMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, params.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, params.cqOff.tail))
	r.cqMask = *(*uint32)(unsafe.Add(cqBase, params.cqOff.ringMask))
	r.cqes = unsafe.Add(cqBase, params.cqOff.cqes)

	return nil
}

// Entries returns the submission queue depth granted by the kernel.
func (r *Ring) Entries() uint32 {
	return r.sqEntries
}

// Close unmaps the rings and closes the ring descriptor. Later calls are
// no-ops.
func (r *Ring) Close() error {
	if r.fd < 0 {
		return nil
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.cqRingMem != nil && &r.cqRingMem[0] != &r.sqRingMem[0] {
		keep(unix.Munmap(r.cqRingMem))
	}
	if r.sqesMem != nil {
		keep(unix.Munmap(r.sqesMem))
	}
	if r.sqRingMem != nil {
		keep(unix.Munmap(r.sqRingMem))
	}
	r.cqRingMem, r.sqesMem, r.sqRingMem = nil, nil, nil
	keep(unix.Close(r.fd))
	r.fd = -1
	return firstErr
}

// PrepVec fills the next SQE with a vectored read or write over iov starting
// at offset. The iovec table must stay reachable until the matching CQE has
// been reaped; the kernel reads it asynchronously.
func (r *Ring) PrepVec(op Op, fd int, iov []unix.Iovec, offset uint64, flags uint8, userData uint64) error {
	if r.fd < 0 {
		return ErrRingClosed
	}
	if len(iov) == 0 {
		return fmt.Errorf("%s: empty iovec table", op)
	}

	head := atomic.LoadUint32(r.sqHead)
	tail := *r.sqTail
	if tail-head >= r.sqEntries {
		return ErrQueueFull
	}
	idx := tail & r.sqMask

	sqe := (*ioUringSQE)(unsafe.Add(r.sqes, uintptr(idx)*sqeSize))
	*sqe = ioUringSQE{}
	sqe.opcode = uint8(op)
	sqe.flags = flags
	sqe.fd = int32(fd) //nolint:gosec // G115: fd values are small non-negative integers
	sqe.off = offset
	sqe.addr = uint64(uintptr(unsafe.Pointer(&iov[0])))
	sqe.len = uint32(len(iov)) //nolint:gosec // G115: bounded by IOVMax
	sqe.userData = userData

	*(*uint32)(unsafe.Add(r.sqArray, uintptr(idx)*4)) = idx

	// Publish the tail only after the SQE is fully written.
	atomic.StoreUint32(r.sqTail, tail+1)
	r.unsubmitted++
	return nil
}

// Submit hands every prepared SQE to the kernel without waiting.
func (r *Ring) Submit() (int, error) {
	if r.fd < 0 {
		return 0, ErrRingClosed
	}
	submitted := 0
	for r.unsubmitted > 0 {
		n, err := r.enter(r.unsubmitted, 0, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return submitted, fmt.Errorf("io_uring_enter: %w", err)
		}
		submitted += n
		r.unsubmitted -= uint32(n) //nolint:gosec // G115: n <= unsubmitted
	}
	return submitted, nil
}

// WaitCQE blocks until a completion is available and returns a copy of it.
// The entry stays in the ring until SeenCQE is called.
func (r *Ring) WaitCQE() (CQE, error) {
	if r.fd < 0 {
		return CQE{}, ErrRingClosed
	}
	for {
		head := *r.cqHead
		if head != atomic.LoadUint32(r.cqTail) {
			cqe := (*CQE)(unsafe.Add(r.cqes, uintptr(head&r.cqMask)*cqeSize))
			return *cqe, nil
		}
		_, err := r.enter(0, 1, ioringEnterGetevents)
		if err != nil && err != unix.EINTR {
			return CQE{}, fmt.Errorf("io_uring_enter: %w", err)
		}
	}
}

// SeenCQE releases the completion slot returned by the last WaitCQE.
func (r *Ring) SeenCQE() {
	if r.fd < 0 {
		return
	}
	atomic.StoreUint32(r.cqHead, *r.cqHead+1)
}

func (r *Ring) enter(toSubmit, minComplete uint32, flags uintptr) (int, error) {
	n, _, errno := unix.Syscall6(
		unix.SYS_IO_URING_ENTER,
		uintptr(r.fd),
		uintptr(toSubmit),
		uintptr(minComplete),
		flags,
		0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}
