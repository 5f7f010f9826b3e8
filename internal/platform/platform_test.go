package platform

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSizeRegular(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, make([]byte, 5000), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	size, err := FileSize(int(f.Fd()))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), size)
}

func TestFileSizePipeUnsupported(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = FileSize(int(r.Fd()))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestFileSizeDirectoryUnsupported(t *testing.T) {
	d, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer d.Close()

	_, err = FileSize(int(d.Fd()))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestMapAligned(t *testing.T) {
	for _, size := range []int{1, BlockSize - 1, BlockSize, BlockSize + 1, 3 * BlockSize} {
		mem, err := MapAligned(size)
		require.NoError(t, err)
		assert.Len(t, mem, size)
		assert.Zero(t, uintptr(unsafe.Pointer(&mem[0]))%BlockSize)

		mem[size-1] = 0xff
		require.NoError(t, Unmap(mem))
	}
}

func TestMapAlignedRejectsZero(t *testing.T) {
	_, err := MapAligned(0)
	assert.Error(t, err)
}

func TestOpenDestinationTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.WriteFile(path, []byte("previous contents"), 0644))

	f, _, err := OpenDestination(path, 0600, false)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestOpenDestinationDirectFallsBack(t *testing.T) {
	// tmpfs rejects O_DIRECT; either way the open must succeed.
	path := filepath.Join(t.TempDir(), "dst")
	f, direct, err := OpenDestination(path, 0644, true)
	require.NoError(t, err)
	defer f.Close()
	t.Logf("O_DIRECT in effect: %v", direct)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "readv", OpReadv.String())
	assert.Equal(t, "writev", OpWritev.String())
	assert.Equal(t, "unknown", Op(99).String())
}

func TestIOURingDetection(t *testing.T) {
	// Just verify the function doesn't panic.
	t.Logf("io_uring available: %v", IOURingAvailable())
}

func TestPreallocate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "prealloc"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, Preallocate(f, 0))
	require.NoError(t, Preallocate(f, 3*BlockSize))

	info, err := f.Stat()
	require.NoError(t, err)
	// Size grows only when the filesystem supports fallocate.
	assert.Contains(t, []int64{0, 3 * BlockSize}, info.Size())
}
