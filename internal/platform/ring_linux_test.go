//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseKernelRelease(t *testing.T) {
	tests := []struct {
		release      string
		major, minor int
		ok           bool
	}{
		{"6.8.0-45-generic", 6, 8, true},
		{"5.1.21", 5, 1, true},
		{"5.15rc1", 5, 15, true},
		{"4.19.0", 4, 19, true},
		{"garbage", 0, 0, false},
		{"x.y", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.release, func(t *testing.T) {
			major, minor, ok := parseKernelRelease(tt.release)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.major, major)
			assert.Equal(t, tt.minor, minor)
		})
	}
}

func mapIovecs(t *testing.T, lengths ...int) ([][]byte, []unix.Iovec) {
	t.Helper()
	bufs := make([][]byte, len(lengths))
	iov := make([]unix.Iovec, len(lengths))
	for i, n := range lengths {
		mem, err := MapAligned(BlockSize)
		require.NoError(t, err)
		t.Cleanup(func() { _ = Unmap(mem) })
		bufs[i] = mem[:n]
		iov[i].Base = &mem[0]
		iov[i].SetLen(n)
	}
	return bufs, iov
}

func TestRingReadvWritev(t *testing.T) {
	if !IOURingAvailable() {
		t.Skip("io_uring not available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	data := make([]byte, BlockSize+10)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(src, data, 0644))

	r, err := SetupRing(8)
	require.NoError(t, err)
	defer r.Close()
	assert.GreaterOrEqual(t, r.Entries(), uint32(8))

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	bufs, iov := mapIovecs(t, BlockSize, 10)
	require.NoError(t, r.PrepVec(OpReadv, int(in.Fd()), iov, 0, 0, 42))
	n, err := r.Submit()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cqe, err := r.WaitCQE()
	require.NoError(t, err)
	r.SeenCQE()
	assert.Equal(t, uint64(42), cqe.UserData)
	assert.Equal(t, int32(len(data)), cqe.Res)
	assert.Equal(t, data[:BlockSize], bufs[0])
	assert.Equal(t, data[BlockSize:], bufs[1])

	out, err := os.Create(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, r.PrepVec(OpWritev, int(out.Fd()), iov, 0, SQEAsync, 43))
	_, err = r.Submit()
	require.NoError(t, err)
	cqe, err = r.WaitCQE()
	require.NoError(t, err)
	r.SeenCQE()
	assert.Equal(t, uint64(43), cqe.UserData)
	assert.Equal(t, int32(len(data)), cqe.Res)

	got, err := os.ReadFile(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRingQueueFull(t *testing.T) {
	if !IOURingAvailable() {
		t.Skip("io_uring not available")
	}

	r, err := SetupRing(1)
	require.NoError(t, err)
	defer r.Close()

	_, iov := mapIovecs(t, 1)
	for j := uint32(0); j < r.Entries(); j++ {
		require.NoError(t, r.PrepVec(OpReadv, -1, iov, 0, 0, 1))
	}
	assert.ErrorIs(t, r.PrepVec(OpReadv, -1, iov, 0, 0, 1), ErrQueueFull)
}

func TestRingBadFdCompletesWithError(t *testing.T) {
	if !IOURingAvailable() {
		t.Skip("io_uring not available")
	}

	r, err := SetupRing(2)
	require.NoError(t, err)
	defer r.Close()

	_, iov := mapIovecs(t, 16)
	require.NoError(t, r.PrepVec(OpReadv, 9999, iov, 0, 0, 7))
	_, err = r.Submit()
	require.NoError(t, err)

	cqe, err := r.WaitCQE()
	require.NoError(t, err)
	r.SeenCQE()
	assert.Equal(t, -int32(unix.EBADF), cqe.Res)
}

func TestRingCloseTwice(t *testing.T) {
	if !IOURingAvailable() {
		t.Skip("io_uring not available")
	}

	r, err := SetupRing(2)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// The descriptor number may already belong to something else.
	other, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, r.Close())
	_, err = other.Stat()
	require.NoError(t, err, "second Close must not touch a reused descriptor")

	_, iov := mapIovecs(t, 1)
	assert.ErrorIs(t, r.PrepVec(OpReadv, int(other.Fd()), iov, 0, 0, 1), ErrRingClosed)
	_, err = r.Submit()
	assert.ErrorIs(t, err, ErrRingClosed)
	_, err = r.WaitCQE()
	assert.ErrorIs(t, err, ErrRingClosed)
	r.SeenCQE()
}
