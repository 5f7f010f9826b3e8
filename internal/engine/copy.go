package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bamsammich/ringio/internal/event"
	"github.com/bamsammich/ringio/internal/platform"
	"github.com/bamsammich/ringio/internal/stats"
)

type copyState int

const (
	copyIdle copyState = iota
	copyReading
	copyReadDone
	copyWriting
	copyDone
)

var copyStateNames = [...]string{
	copyIdle:     "idle",
	copyReading:  "reading",
	copyReadDone: "read-done",
	copyWriting:  "writing",
	copyDone:     "done",
}

func (s copyState) String() string {
	if int(s) < len(copyStateNames) {
		return copyStateNames[s]
	}
	return "unknown"
}

// Copier copies a file with two rings: the whole source is read into one
// Request on ReadRing, then the same segment table is written out on
// WriteRing. No write is submitted before the read has completed, so the
// destination never sees data from a partially read source.
type Copier struct {
	ReadRing  *Ring
	WriteRing *Ring
	Alloc     Allocator
	// Direct opens the destination with O_DIRECT when the source size is a
	// multiple of BlockSize.
	Direct bool
	// Verify compares BLAKE3 digests of source and destination after the copy.
	Verify bool
	Stats  *stats.Collector
	Logger *slog.Logger
	Events chan<- event.Event
}

// CopyResult reports the outcome of CopyFile.
type CopyResult struct {
	Bytes    int64
	Blocks   int
	Direct   bool
	Verified bool
}

// CopyFile copies src to dst. dst is created with src's permission bits, or
// truncated if it exists. Files with more than platform.IOVMax blocks are
// rejected before dst is touched.
func (c *Copier) CopyFile(ctx context.Context, src, dst string) (res CopyResult, err error) {
	log := c.logger().With("src", src, "dst", dst)
	defer func() {
		ev := event.Event{Path: src, Dst: dst, Size: res.Bytes, Blocks: res.Blocks}
		if err != nil {
			c.Stats.AddFilesFailed(1)
			ev.Type, ev.Error = event.FileFailed, err
			event.Emit(c.Events, ev)
			return
		}
		c.Stats.AddFilesDone(1)
		ev.Type = event.FileCompleted
		event.Emit(c.Events, ev)
	}()

	in, err := os.Open(src)
	if err != nil {
		return CopyResult{}, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return CopyResult{}, err
	}
	// Opening dst truncates it, which would destroy src before it is read.
	if dstInfo, serr := os.Stat(dst); serr == nil && os.SameFile(info, dstInfo) {
		return CopyResult{}, fmt.Errorf("%w: %s and %s", ErrSameFile, src, dst)
	}

	srcFd := int(in.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
	size, err := platform.FileSize(srcFd)
	if err != nil {
		return CopyResult{}, &SizeQueryError{Path: src, Err: err}
	}

	blocks := BlockCount(size)
	if blocks > platform.IOVMax {
		return CopyResult{}, fmt.Errorf("%w: %d blocks of %d bytes (max %d)",
			ErrTooManySegments, blocks, BlockSize, platform.IOVMax)
	}

	wantDirect := c.Direct && size > 0 && size%BlockSize == 0
	out, direct, err := platform.OpenDestination(dst, info.Mode().Perm(), wantDirect)
	if err != nil {
		return CopyResult{}, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
	}()

	res = CopyResult{Blocks: blocks, Direct: direct}
	log.Debug("copy", "size", size, "blocks", blocks, "direct", direct)
	event.Emit(c.Events, event.Event{Type: event.FileStarted, Path: src, Dst: dst, Size: size, Blocks: blocks})
	if size == 0 {
		return res, nil
	}

	err = platform.Preallocate(out, size)
	if err == nil {
		dstFd := int(out.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
		res.Bytes, err = c.transfer(ctx, srcFd, dstFd, size, log)
	}
	if err != nil {
		// Drop whatever preallocation or partial data is there.
		if terr := out.Truncate(0); terr != nil {
			log.Warn("truncate destination after failure", "error", terr)
		}
		return res, err
	}

	if c.Verify {
		if err := VerifyCopy(src, dst, size); err != nil {
			event.Emit(c.Events, event.Event{Type: event.VerifyFailed, Path: src, Dst: dst, Error: err})
			return res, err
		}
		res.Verified = true
		event.Emit(c.Events, event.Event{Type: event.VerifyOK, Path: src, Dst: dst, Size: res.Bytes})
		log.Debug("verified")
	}
	return res, nil
}

// transfer drives one file through idle → reading → read-done → writing →
// done.
func (c *Copier) transfer(ctx context.Context, srcFd, dstFd int, size int64, log *slog.Logger) (int64, error) {
	state := copyIdle
	step := func(next copyState, attrs ...any) {
		state = next
		log.Debug("copy", append([]any{"state", state.String()}, attrs...)...)
	}
	step(copyIdle)

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	req, err := BuildRequest(c.Alloc, srcFd, dstFd, size)
	if err != nil {
		return 0, err
	}
	defer releaseRequest(req, log)

	rh, err := c.ReadRing.SubmitReadv(req, req.Src, 0)
	if err != nil {
		return 0, err
	}
	step(copyReading, "handle", rh.String())

	rc, err := c.ReadRing.await(rh)
	if err != nil {
		return 0, err
	}
	if err := rc.Err(); err != nil {
		return 0, err
	}
	if rc.Bytes() != size {
		return 0, &ShortTransferError{Op: rc.Op, Want: size, Got: rc.Bytes()}
	}
	c.Stats.AddBytesRead(rc.Bytes())
	step(copyReadDone, "bytes", rc.Bytes())

	// Same Request, same segment table: the buffers just filled are written
	// out as they are.
	wh, err := c.WriteRing.SubmitWritev(rc.Request, rc.Request.Dst, 0)
	if err != nil {
		return 0, err
	}
	step(copyWriting, "handle", wh.String())

	wc, waitErr := c.WriteRing.await(wh)
	relErr := req.Release()
	step(copyDone)
	if waitErr != nil {
		return 0, waitErr
	}
	if err := wc.Err(); err != nil {
		return 0, err
	}
	if wc.Bytes() != size {
		return wc.Bytes(), &ShortTransferError{Op: wc.Op, Want: size, Got: wc.Bytes()}
	}
	c.Stats.AddBytesWritten(wc.Bytes())
	if relErr != nil {
		return wc.Bytes(), fmt.Errorf("release buffers: %w", relErr)
	}
	return wc.Bytes(), nil
}

func (c *Copier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
