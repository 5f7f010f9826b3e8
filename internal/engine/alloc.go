package engine

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/bamsammich/ringio/internal/platform"
	"github.com/bamsammich/ringio/internal/stats"
)

// BlockSize is the segment size and buffer alignment used for every request.
const BlockSize = platform.BlockSize

// Allocator hands out BlockSize-aligned buffers suitable for O_DIRECT.
type Allocator interface {
	// Allocate returns a block of exactly size bytes. Failures are
	// *AllocationError.
	Allocate(size int) (*Block, error)
	// Release returns b to the system. A second release of the same block
	// returns ErrDoubleRelease.
	Release(b *Block) error
}

// Block is one aligned buffer owned by whoever allocated it.
type Block struct {
	mem []byte
}

// Bytes returns the block's memory, or nil once released.
func (b *Block) Bytes() []byte { return b.mem }

// Len returns the usable size in bytes.
func (b *Block) Len() int { return len(b.mem) }

// Released reports whether the block has been returned to its allocator.
func (b *Block) Released() bool { return b.mem == nil }

// Aligned reports whether the block's base address is a multiple of BlockSize.
func (b *Block) Aligned() bool {
	return len(b.mem) > 0 && uintptr(unsafe.Pointer(&b.mem[0]))%BlockSize == 0
}

// MmapAllocator backs every block with its own anonymous mapping. Mappings
// are page-aligned, which satisfies BlockSize alignment on every Linux
// architecture.
type MmapAllocator struct {
	stats *stats.Collector
}

// NewMmapAllocator returns an allocator that counts allocations and releases
// in c. c may be nil.
func NewMmapAllocator(c *stats.Collector) *MmapAllocator {
	return &MmapAllocator{stats: c}
}

var errInvalidSize = errors.New("size must be positive")

func (a *MmapAllocator) Allocate(size int) (*Block, error) {
	if size <= 0 {
		return nil, &AllocationError{Size: size, Err: errInvalidSize}
	}
	mem, err := platform.MapAligned(size)
	if err != nil {
		return nil, &AllocationError{Size: size, Err: err}
	}
	a.stats.AddBlocksAllocated(1)
	return &Block{mem: mem}, nil
}

func (a *MmapAllocator) Release(b *Block) error {
	if b == nil || b.mem == nil {
		return ErrDoubleRelease
	}
	mem := b.mem
	b.mem = nil
	a.stats.AddBlocksReleased(1)
	if err := platform.Unmap(mem); err != nil {
		return fmt.Errorf("release block: %w", err)
	}
	return nil
}
