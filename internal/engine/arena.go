package engine

import (
	"fmt"

	"github.com/eapache/queue"

	"github.com/bamsammich/ringio/internal/platform"
)

// Handle identifies one submission on one Ring. It packs a slot index (low
// 32 bits) and the slot's generation (high 32 bits) and travels through the
// kernel as the SQE user_data. Generations start at 1, so the zero Handle is
// never live.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32      { return uint32(h) } //nolint:gosec // G115: low half by construction
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index(), h.generation())
}

type arenaSlot struct {
	req *Request
	op  platform.Op
	gen uint32
}

// arena maps live handles to their requests. A completion can only be
// matched against the exact submission that produced it: once a slot is
// taken its generation moves on, so a repeated or forged handle resolves to
// ErrStaleHandle instead of a released Request. Freed slots are recycled in
// FIFO order, which keeps a just-freed index out of circulation as long as
// possible.
type arena struct {
	slots []arenaSlot
	free  *queue.Queue
	live  int
}

func newArena() *arena {
	return &arena{free: queue.New()}
}

func (a *arena) insert(req *Request, op platform.Op) Handle {
	var idx uint32
	if a.free.Length() > 0 {
		idx = a.free.Remove().(uint32) //nolint:forcetypeassert // only uint32 is ever queued
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1) //nolint:gosec // G115: bounded by queue depth
	}

	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.req = req
	s.op = op
	a.live++
	return makeHandle(idx, s.gen)
}

func (a *arena) take(h Handle) (*Request, platform.Op, error) {
	idx := h.index()
	if int(idx) >= len(a.slots) {
		return nil, 0, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	s := &a.slots[idx]
	if s.req == nil || s.gen != h.generation() {
		return nil, 0, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}

	req, op := s.req, s.op
	s.req = nil
	a.live--
	a.free.Add(idx)
	return req, op, nil
}

// drain removes and returns every live request.
func (a *arena) drain() []*Request {
	var reqs []*Request
	for i := range a.slots {
		s := &a.slots[i]
		if s.req == nil {
			continue
		}
		reqs = append(reqs, s.req)
		s.req = nil
		a.live--
		a.free.Add(uint32(i)) //nolint:gosec // G115: bounded by queue depth
	}
	return reqs
}
