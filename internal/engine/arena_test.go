package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ringio/internal/platform"
)

func TestArenaInsertTake(t *testing.T) {
	a := newArena()
	req := &Request{}

	h := a.insert(req, platform.OpReadv)
	assert.NotZero(t, h)
	assert.Equal(t, 1, a.live)

	got, op, err := a.take(h)
	require.NoError(t, err)
	assert.Same(t, req, got)
	assert.Equal(t, platform.OpReadv, op)
	assert.Zero(t, a.live)
}

func TestArenaRejectsRepeatedTake(t *testing.T) {
	a := newArena()
	h := a.insert(&Request{}, platform.OpWritev)

	_, _, err := a.take(h)
	require.NoError(t, err)
	_, _, err = a.take(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestArenaGenerationOnReuse(t *testing.T) {
	a := newArena()
	first := a.insert(&Request{}, platform.OpReadv)
	_, _, err := a.take(first)
	require.NoError(t, err)

	second := a.insert(&Request{}, platform.OpReadv)
	assert.Equal(t, first.index(), second.index(), "slot is recycled")
	assert.NotEqual(t, first.generation(), second.generation())

	// The old handle must not resolve to the new occupant.
	_, _, err = a.take(first)
	assert.ErrorIs(t, err, ErrStaleHandle)

	_, _, err = a.take(second)
	assert.NoError(t, err)
}

func TestArenaUnknownHandles(t *testing.T) {
	a := newArena()
	_, _, err := a.take(0)
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, _, err = a.take(makeHandle(7, 1))
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestArenaFIFOReuse(t *testing.T) {
	a := newArena()
	h0 := a.insert(&Request{}, platform.OpReadv)
	h1 := a.insert(&Request{}, platform.OpReadv)
	_, _, _ = a.take(h0)
	_, _, _ = a.take(h1)

	assert.Equal(t, h0.index(), a.insert(&Request{}, platform.OpReadv).index())
	assert.Equal(t, h1.index(), a.insert(&Request{}, platform.OpReadv).index())
}

func TestArenaDrain(t *testing.T) {
	a := newArena()
	r1, r2 := &Request{}, &Request{}
	a.insert(r1, platform.OpReadv)
	h := a.insert(r2, platform.OpWritev)

	reqs := a.drain()
	assert.ElementsMatch(t, []*Request{r1, r2}, reqs)
	assert.Zero(t, a.live)

	_, _, err := a.take(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "3#2", makeHandle(3, 2).String())
}
