package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// hashBufferSize is the read size used while hashing; a whole vector's worth
// of blocks.
const hashBufferSize = 256 * BlockSize

// Digest is a BLAKE3-256 checksum.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// HashFile computes the BLAKE3 digest of the file at path.
func HashFile(path string) (Digest, error) {
	return hashFile(path, -1)
}

// hashFile digests the first limit bytes of path, or all of it when limit is
// negative. Block devices report st_size 0, so callers that know the length
// pass it in.
func hashFile(path string, limit int64) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit >= 0 {
		r = io.LimitReader(f, limit)
	}

	h := blake3.New()
	buf := make([]byte, hashBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	if limit >= 0 && n != limit {
		return Digest{}, fmt.Errorf("%w: %s ends at %d of %d bytes", ErrVerifyMismatch, path, n, limit)
	}

	var d Digest
	h.Sum(d[:0])
	return d, nil
}

// VerifyCopy checks that dst holds exactly the size bytes copied from src.
// size is the length the copy measured, not src's st_size. The destination
// length is compared first; digests only when it agrees. A difference is
// ErrVerifyMismatch.
func VerifyCopy(src, dst string, size int64) error {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return err
	}
	if dstInfo.Size() != size {
		return fmt.Errorf("%w: %s is %d bytes, expected %d", ErrVerifyMismatch, dst, dstInfo.Size(), size)
	}

	srcSum, err := hashFile(src, size)
	if err != nil {
		return err
	}
	dstSum, err := hashFile(dst, size)
	if err != nil {
		return err
	}
	if srcSum != dstSum {
		return fmt.Errorf("%w: %s is %s, %s is %s", ErrVerifyMismatch, src, srcSum, dst, dstSum)
	}
	return nil
}
