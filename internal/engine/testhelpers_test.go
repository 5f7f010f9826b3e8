package engine

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/ringio/internal/platform"
	"github.com/bamsammich/ringio/internal/stats"
)

// syncOp is one prepared submission held by syncBackend.
type syncOp struct {
	op       platform.Op
	fd       int
	iov      []unix.Iovec
	offset   int64
	flags    uint8
	userData uint64
}

// syncBackend stands in for the kernel ring when io_uring is unavailable
// (seccomp in CI containers). Prepared operations run with preadv/pwritev
// when their completion is waited for.
type syncBackend struct {
	depth     int
	prepared  []syncOp
	submitted []syncOp
	current   *platform.CQE
	seen      int
	closed    bool
	flagsSeen []uint8

	// Test knobs.
	failOp     map[platform.Op]syscall.Errno
	shortBy    map[platform.Op]int
	submitErr  error
	userDataFn func(uint64) uint64
}

func newSyncBackend() *syncBackend {
	return &syncBackend{
		depth:   DefaultQueueDepth,
		failOp:  map[platform.Op]syscall.Errno{},
		shortBy: map[platform.Op]int{},
	}
}

func (b *syncBackend) PrepVec(op platform.Op, fd int, iov []unix.Iovec, offset uint64, flags uint8, userData uint64) error {
	if len(b.prepared)+len(b.submitted) >= b.depth {
		return platform.ErrQueueFull
	}
	b.prepared = append(b.prepared, syncOp{
		op: op, fd: fd, iov: iov, offset: int64(offset), flags: flags, userData: userData, //nolint:gosec // test offsets are small
	})
	b.flagsSeen = append(b.flagsSeen, flags)
	return nil
}

func (b *syncBackend) Submit() (int, error) {
	if b.submitErr != nil {
		return 0, b.submitErr
	}
	n := len(b.prepared)
	b.submitted = append(b.submitted, b.prepared...)
	b.prepared = nil
	return n, nil
}

func (b *syncBackend) WaitCQE() (platform.CQE, error) {
	if b.current != nil {
		return *b.current, nil
	}
	if len(b.submitted) == 0 {
		return platform.CQE{}, errors.New("syncBackend: nothing submitted")
	}
	op := b.submitted[0]
	b.submitted = b.submitted[1:]

	cqe := platform.CQE{UserData: op.userData, Res: b.run(op)}
	if b.userDataFn != nil {
		cqe.UserData = b.userDataFn(cqe.UserData)
	}
	b.current = &cqe
	return cqe, nil
}

func (b *syncBackend) run(op syncOp) int32 {
	if errno, ok := b.failOp[op.op]; ok {
		return -int32(errno) //nolint:gosec // errno values are small
	}

	bufs := make([][]byte, len(op.iov))
	for i, v := range op.iov {
		bufs[i] = unsafe.Slice(v.Base, v.Len)
	}
	if short := b.shortBy[op.op]; short > 0 {
		last := bufs[len(bufs)-1]
		bufs[len(bufs)-1] = last[:max(0, len(last)-short)]
	}

	var (
		n   int
		err error
	)
	switch op.op {
	case platform.OpReadv:
		n, err = unix.Preadv(op.fd, bufs, op.offset)
	case platform.OpWritev:
		n, err = unix.Pwritev(op.fd, bufs, op.offset)
	default:
		return -int32(unix.EINVAL)
	}
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return -int32(errno) //nolint:gosec // errno values are small
		}
		return -int32(unix.EIO)
	}
	return int32(n) //nolint:gosec // bounded by IOVMax * BlockSize
}

func (b *syncBackend) SeenCQE() {
	if b.current != nil {
		b.current = nil
		b.seen++
	}
}

func (b *syncBackend) Close() error {
	b.closed = true
	return nil
}

// testRing returns a Ring backed by the kernel when io_uring is available
// and by syncBackend otherwise.
func testRing(t *testing.T, c *stats.Collector, opts ...RingOption) *Ring {
	t.Helper()
	opts = append(opts, WithStats(c))
	if platform.IOURingAvailable() {
		r, err := NewRing(8, opts...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		return r
	}
	r := newRing(newSyncBackend(), opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// fakeRing always uses syncBackend so failures can be injected.
func fakeRing(t *testing.T, c *stats.Collector, opts ...RingOption) (*Ring, *syncBackend) {
	t.Helper()
	b := newSyncBackend()
	r := newRing(b, append(opts, WithStats(c))...)
	t.Cleanup(func() { _ = r.Close() })
	return r, b
}

// failingAllocator hands out mmap blocks until limit allocations have
// succeeded, then fails.
type failingAllocator struct {
	*MmapAllocator
	limit int
	count int
}

func (a *failingAllocator) Allocate(size int) (*Block, error) {
	if a.count >= a.limit {
		return nil, &AllocationError{Size: size, Err: unix.ENOMEM}
	}
	a.count++
	return a.MmapAllocator.Allocate(size)
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// requireNoLeak checks that every allocated block was released exactly once.
func requireNoLeak(t *testing.T, c *stats.Collector) {
	t.Helper()
	s := c.Snapshot()
	require.Zero(t, s.BlocksOutstanding(), "allocated=%d released=%d", s.BlocksAllocated, s.BlocksReleased)
}
