package diff

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/core/object_pool"
	"github.com/stretchr/testify/require"
)

func TestMarkAndDrainOnce(t *testing.T) {
	tr := NewTracker()
	h := object_pool.Handle(1)

	tr.Mark(h, 0)
	tr.Mark(h, 3)
	tr.Mark(h, 3) // repeat mutation of the same member coalesces
	require.Equal(t, 1, tr.Len())

	bits := tr.Drain(h)
	require.Equal(t, uint64(1)<<0|uint64(1)<<3, bits)

	// Drained state is gone: the same change is never reported twice.
	require.Zero(t, tr.Drain(h))
	require.Zero(t, tr.Len())
}

func TestMarkAfterDrainIsCapturedForNextDrain(t *testing.T) {
	tr := NewTracker()
	h := object_pool.Handle(2)

	tr.Mark(h, 1)
	tr.Drain(h)

	tr.Mark(h, 2)
	require.Equal(t, uint64(1)<<2, tr.Drain(h))
}

func TestMarkBits(t *testing.T) {
	tr := NewTracker()
	h := object_pool.Handle(3)

	tr.Mark(h, 0)
	tr.MarkBits(h, uint64(1)<<4|uint64(1)<<5)
	require.Equal(t, uint64(1)<<0|uint64(1)<<4|uint64(1)<<5, tr.Peek(h))
	require.Equal(t, tr.Peek(h), tr.Drain(h))
}

func TestForget(t *testing.T) {
	tr := NewTracker()
	h := object_pool.Handle(4)

	tr.Mark(h, 0)
	tr.Forget(h)
	require.Zero(t, tr.Drain(h))
	require.Zero(t, tr.Len())
}

func TestTrackersAreIndependentPerHandle(t *testing.T) {
	tr := NewTracker()
	a, b := object_pool.Handle(5), object_pool.Handle(6)

	tr.Mark(a, 0)
	tr.Mark(b, 1)

	require.Equal(t, uint64(1)<<0, tr.Drain(a))
	require.Equal(t, uint64(1)<<1, tr.Peek(b), "draining one handle must not touch another")
}
