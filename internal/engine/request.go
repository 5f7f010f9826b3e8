package engine

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// segment is one entry of a Request's vector table.
type segment struct {
	block  *Block
	length int
}

// Request is the record that travels with one vectored operation: the
// descriptors it targets, the file length it was sized for, and the
// scatter/gather table of aligned blocks. A Request owns its blocks; they go
// back to the allocator through ReleaseSegment or Release and never through
// anyone else.
type Request struct {
	Src  int
	Dst  int // -1 when the request only reads
	Size int64

	alloc    Allocator
	segments []segment
	iovecs   []unix.Iovec
	held     int
}

// BlockCount returns ceil(size / BlockSize).
func BlockCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + BlockSize - 1) / BlockSize)
}

// BuildRequest allocates a Request covering size bytes, one BlockSize block
// per segment. Every segment is BlockSize long except the last, which holds
// the remainder. A zero size yields a Request with no segments. If any block
// allocation fails the blocks allocated so far are released before the error
// is returned.
func BuildRequest(alloc Allocator, src, dst int, size int64) (*Request, error) {
	if size < 0 {
		return nil, &SizeQueryError{Err: fmt.Errorf("negative size %d", size)}
	}

	n := BlockCount(size)
	req := &Request{
		Src:      src,
		Dst:      dst,
		Size:     size,
		alloc:    alloc,
		segments: make([]segment, 0, n),
		iovecs:   make([]unix.Iovec, 0, n),
	}

	remaining := size
	for j := 0; j < n; j++ {
		b, err := alloc.Allocate(BlockSize)
		if err != nil {
			var allocErr *AllocationError
			if !errors.As(err, &allocErr) {
				err = &AllocationError{Size: BlockSize, Err: err}
			}
			return nil, errors.Join(err, req.Release())
		}

		length := int(min(remaining, BlockSize))
		req.segments = append(req.segments, segment{block: b, length: length})

		var iov unix.Iovec
		iov.Base = &b.mem[0]
		iov.SetLen(length)
		req.iovecs = append(req.iovecs, iov)

		req.held++
		remaining -= BlockSize
	}
	return req, nil
}

// BlockCount returns the number of segments in the vector table.
func (r *Request) BlockCount() int { return len(r.segments) }

// Held returns how many segments still own their block.
func (r *Request) Held() int { return r.held }

// SegmentLen returns the number of valid bytes in segment i.
func (r *Request) SegmentLen(i int) int { return r.segments[i].length }

// Segment returns the valid bytes of segment i, or nil once it has been
// released.
func (r *Request) Segment(i int) []byte {
	s := r.segments[i]
	if s.block == nil || s.block.Released() {
		return nil
	}
	return s.block.mem[:s.length]
}

// Buffers returns the valid bytes of every segment in index order.
func (r *Request) Buffers() [][]byte {
	bufs := make([][]byte, len(r.segments))
	for i := range r.segments {
		bufs[i] = r.Segment(i)
	}
	return bufs
}

// Iovecs returns the table handed to the kernel. It aliases the Request's
// memory and must not outlive it.
func (r *Request) Iovecs() []unix.Iovec { return r.iovecs }

// ReleaseSegment returns segment i's block to the allocator. Releasing an
// already released segment is a no-op: ownership is dropped on the first
// call, so a block can never be freed twice through its Request.
func (r *Request) ReleaseSegment(i int) error {
	s := &r.segments[i]
	if s.block == nil {
		return nil
	}
	b := s.block
	s.block = nil
	r.iovecs[i] = unix.Iovec{}
	r.held--
	return r.alloc.Release(b)
}

// Release returns every block still held. It is safe to call more than once
// and on a nil Request.
func (r *Request) Release() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := range r.segments {
		if err := r.ReleaseSegment(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
