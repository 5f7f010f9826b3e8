package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/ringio/internal/platform"
	"github.com/bamsammich/ringio/internal/stats"
)

// DefaultQueueDepth is the submission queue depth used when none is given.
const DefaultQueueDepth = 256

// ringBackend is the kernel-facing half of a Ring. platform.Ring is the only
// production implementation.
type ringBackend interface {
	PrepVec(op platform.Op, fd int, iov []unix.Iovec, offset uint64, flags uint8, userData uint64) error
	Submit() (int, error)
	WaitCQE() (platform.CQE, error)
	SeenCQE()
	Close() error
}

// Ring owns one io_uring instance and correlates its completions back to
// the Requests that were submitted on it. A Ring is used from a single
// goroutine.
type Ring struct {
	backend  ringBackend
	arena    *arena
	sqeFlags uint8
	name     string
	logger   *slog.Logger
	stats    *stats.Collector

	// broken is set when a prepared SQE could not be handed to the kernel;
	// the ring state is unknown from then on.
	broken error
	closed bool
}

// RingOption configures a Ring.
type RingOption func(*Ring)

// WithAsync marks every submission IOSQE_ASYNC so the kernel issues it from
// its worker pool instead of attempting it inline.
func WithAsync() RingOption {
	return func(r *Ring) { r.sqeFlags |= platform.SQEAsync }
}

// WithName labels the ring in log output.
func WithName(name string) RingOption {
	return func(r *Ring) { r.name = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RingOption {
	return func(r *Ring) { r.logger = l }
}

// WithStats counts submissions and completions in c.
func WithStats(c *stats.Collector) RingOption {
	return func(r *Ring) { r.stats = c }
}

// NewRing sets up a kernel ring with the given submission queue depth (0
// means DefaultQueueDepth). Failure is a *RingInitError.
func NewRing(depth uint32, opts ...RingOption) (*Ring, error) {
	if depth == 0 {
		depth = DefaultQueueDepth
	}
	pr, err := platform.SetupRing(depth)
	if err != nil {
		return nil, &RingInitError{Depth: depth, Err: err}
	}
	return newRing(pr, opts...), nil
}

func newRing(b ringBackend, opts ...RingOption) *Ring {
	r := &Ring{
		backend: b,
		arena:   newArena(),
		name:    "ring",
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Completion is one reaped CQE matched to its Request.
type Completion struct {
	Handle  Handle
	Op      platform.Op
	Request *Request
	// Res is the kernel result: bytes transferred, or a negated errno.
	Res int32
}

// Err returns an *IoError for a negative result.
func (c Completion) Err() error {
	if c.Res < 0 {
		return &IoError{Op: c.Op, Errno: syscall.Errno(-c.Res)}
	}
	return nil
}

// Bytes returns the number of bytes transferred, or 0 on error.
func (c Completion) Bytes() int64 {
	if c.Res < 0 {
		return 0
	}
	return int64(c.Res)
}

// SubmitReadv queues one vectored read filling req's segments in index order
// from fd starting at offset, and flushes it to the kernel.
func (r *Ring) SubmitReadv(req *Request, fd int, offset int64) (Handle, error) {
	return r.submit(platform.OpReadv, req, fd, offset)
}

// SubmitWritev queues one vectored write of req's segments to fd starting at
// offset, and flushes it to the kernel.
func (r *Ring) SubmitWritev(req *Request, fd int, offset int64) (Handle, error) {
	return r.submit(platform.OpWritev, req, fd, offset)
}

func (r *Ring) submit(op platform.Op, req *Request, fd int, offset int64) (Handle, error) {
	if err := r.usable(); err != nil {
		return 0, &SubmissionError{Op: op, Err: err}
	}
	switch {
	case req == nil || req.BlockCount() == 0:
		return 0, &SubmissionError{Op: op, Err: errors.New("empty request")}
	case req.BlockCount() > platform.IOVMax:
		return 0, &SubmissionError{Op: op, Err: fmt.Errorf("%w: %d blocks (max %d)",
			ErrTooManySegments, req.BlockCount(), platform.IOVMax)}
	case req.Held() != req.BlockCount():
		return 0, &SubmissionError{Op: op, Err: errors.New("request has released segments")}
	case offset < 0:
		return 0, &SubmissionError{Op: op, Err: fmt.Errorf("negative offset %d", offset)}
	}

	h := r.arena.insert(req, op)
	err := r.backend.PrepVec(op, fd, req.Iovecs(), uint64(offset), r.sqeFlags, uint64(h))
	if err != nil {
		_, _, _ = r.arena.take(h)
		return 0, &SubmissionError{Op: op, Err: err}
	}
	if _, err := r.backend.Submit(); err != nil {
		_, _, _ = r.arena.take(h)
		r.broken = err
		return 0, &SubmissionError{Op: op, Err: err}
	}

	r.stats.AddSubmissions(1)
	r.logger.Debug("submitted",
		"ring", r.name,
		"op", op.String(),
		"fd", fd,
		"handle", h.String(),
		"segments", req.BlockCount(),
		"bytes", req.Size,
	)
	return h, nil
}

// WaitCompletion blocks until a submitted operation completes, acknowledges
// its CQE and returns it matched to its Request. It does not time out. A
// completion whose handle is not live returns ErrStaleHandle; its CQE is
// still acknowledged.
func (r *Ring) WaitCompletion() (Completion, error) {
	if err := r.usable(); err != nil {
		return Completion{}, err
	}
	if r.arena.live == 0 {
		return Completion{}, ErrNothingInFlight
	}

	cqe, err := r.backend.WaitCQE()
	if err != nil {
		return Completion{}, fmt.Errorf("wait completion: %w", err)
	}
	r.backend.SeenCQE()

	h := Handle(cqe.UserData)
	req, op, err := r.arena.take(h)
	if err != nil {
		return Completion{Handle: h, Res: cqe.Res}, err
	}

	r.stats.AddCompletions(1)
	r.logger.Debug("completed",
		"ring", r.name,
		"op", op.String(),
		"handle", h.String(),
		"res", cqe.Res,
	)
	return Completion{Handle: h, Op: op, Request: req, Res: cqe.Res}, nil
}

// await reaps the next completion and checks that it belongs to h. The
// pipelines keep one request in flight per ring, so anything else is a bug;
// the unexpected request is released rather than leaked.
func (r *Ring) await(h Handle) (Completion, error) {
	comp, err := r.WaitCompletion()
	if err != nil {
		return comp, err
	}
	if comp.Handle != h {
		_ = comp.Request.Release()
		return comp, fmt.Errorf("%w: got %s, want %s", ErrStaleHandle, comp.Handle, h)
	}
	return comp, nil
}

// InFlight returns the number of submitted requests not yet reaped.
func (r *Ring) InFlight() int { return r.arena.live }

// Close tears down the kernel ring and releases the blocks of any request
// that was never reaped. It is safe to call more than once.
func (r *Ring) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true

	// The kernel may still reference in-flight buffers until the ring fd is
	// gone, so close first and release after.
	errs := []error{r.backend.Close()}
	for _, req := range r.arena.drain() {
		errs = append(errs, req.Release())
	}
	return errors.Join(errs...)
}

func (r *Ring) usable() error {
	if r.closed {
		return ErrRingClosed
	}
	if r.broken != nil {
		return fmt.Errorf("ring unusable after failed submit: %w", r.broken)
	}
	return nil
}
