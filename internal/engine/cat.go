package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bamsammich/ringio/internal/event"
	"github.com/bamsammich/ringio/internal/platform"
	"github.com/bamsammich/ringio/internal/stats"
)

type catState int

const (
	catIdle catState = iota
	catSubmitted
	catCompleted
)

var catStateNames = [...]string{
	catIdle:      "idle",
	catSubmitted: "submitted",
	catCompleted: "completed",
}

func (s catState) String() string {
	if int(s) < len(catStateNames) {
		return catStateNames[s]
	}
	return "unknown"
}

// Concatenator streams whole files through one Ring: each file is read with a
// single vectored read and written to Out segment by segment. Files are
// handled strictly one after another.
type Concatenator struct {
	Ring   *Ring
	Alloc  Allocator
	Out    io.Writer
	Stats  *stats.Collector
	Logger *slog.Logger
	Events chan<- event.Event
}

// Cat writes every file in paths to Out in order. The first failure aborts
// the remaining files and is returned wrapped with the offending path.
func (c *Concatenator) Cat(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.catPath(ctx, path)
		if err != nil {
			c.Stats.AddFilesFailed(1)
			event.Emit(c.Events, event.Event{Type: event.FileFailed, Path: path, Error: err})
			return fmt.Errorf("%s: %w", path, err)
		}
		c.Stats.AddFilesDone(1)
		event.Emit(c.Events, event.Event{Type: event.FileCompleted, Path: path, Size: n, Blocks: BlockCount(n)})
	}
	return nil
}

// CatFile writes one file to Out.
func (c *Concatenator) CatFile(ctx context.Context, path string) error {
	_, err := c.catPath(ctx, path)
	return err
}

func (c *Concatenator) catPath(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fd := int(f.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
	size, err := platform.FileSize(fd)
	if err != nil {
		return 0, &SizeQueryError{Path: path, Err: err}
	}
	event.Emit(c.Events, event.Event{Type: event.FileStarted, Path: path, Size: size, Blocks: BlockCount(size)})
	if err := c.catFd(ctx, fd, size, c.logger().With("path", path)); err != nil {
		return 0, err
	}
	return size, nil
}

func (c *Concatenator) catFd(ctx context.Context, fd int, size int64, log *slog.Logger) error {
	state := catIdle
	log.Debug("cat", "state", state.String(), "size", size)

	if size == 0 {
		return nil
	}
	if blocks := BlockCount(size); blocks > platform.IOVMax {
		return fmt.Errorf("%w: %d blocks (max %d)", ErrTooManySegments, blocks, platform.IOVMax)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req, err := BuildRequest(c.Alloc, fd, -1, size)
	if err != nil {
		return err
	}
	defer releaseRequest(req, log)

	h, err := c.Ring.SubmitReadv(req, fd, 0)
	if err != nil {
		return err
	}
	state = catSubmitted
	log.Debug("cat", "state", state.String(), "handle", h.String(), "blocks", req.BlockCount())

	comp, err := c.Ring.await(h)
	if err != nil {
		return err
	}
	if err := comp.Err(); err != nil {
		return err
	}
	if comp.Bytes() != size {
		return &ShortTransferError{Op: comp.Op, Want: size, Got: comp.Bytes()}
	}
	c.Stats.AddBytesRead(comp.Bytes())

	for i := 0; i < req.BlockCount(); i++ {
		if _, err := c.Out.Write(req.Segment(i)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := req.ReleaseSegment(i); err != nil {
			return err
		}
	}
	c.Stats.AddBytesWritten(size)

	state = catCompleted
	log.Debug("cat", "state", state.String())
	return nil
}

func (c *Concatenator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// releaseRequest is deferred by the pipelines so that every exit path hands
// the request's blocks back.
func releaseRequest(req *Request, log *slog.Logger) {
	if err := req.Release(); err != nil {
		log.Warn("release request buffers", "error", err)
	}
}
